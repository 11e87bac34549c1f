package storage_test

import (
	"context"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"github.com/tidwall/gjson"

	"github.com/luma/hoxconform/protocol"
	"github.com/luma/hoxconform/storage"
)

var _ = Describe("storage / InmemoryStore", func() {
	var (
		ctx    context.Context
		store  *storage.InmemoryStore
		itimes = protocol.Times{Game: 1200, Move: 300, Free: 20}
	)

	BeforeEach(func() {
		ctx = context.Background()
		store = storage.NewInmemoryStore()
	})

	AfterEach(func() {
		Expect(store.Close()).To(Succeed())
	})

	Describe("Close()", func() {
		It("does not panic when closed twice", func() {
			Expect(func() { store.Close() }).NotTo(Panic())
			Expect(func() { store.Close() }).NotTo(Panic())
		})

		It("refuses changes once closed", func() {
			table, err := store.CreateTable(ctx, "p1", itimes, protocol.Red)
			Expect(err).To(Succeed())

			Expect(store.Close()).To(Succeed())

			_, err = store.CreateTable(ctx, "p2", itimes, protocol.Red)
			Expect(err).To(MatchError(storage.ErrStoreClosed))

			_, err = store.Join(ctx, table.ID, "p2", protocol.Black)
			Expect(err).To(MatchError(storage.ErrStoreClosed))

			_, err = store.Leave(ctx, table.ID, "p1")
			Expect(err).To(MatchError(storage.ErrStoreClosed))

			Expect(store.Restore([]byte(`{"seq":0,"tables":[]}`))).To(MatchError(storage.ErrStoreClosed))

			tables, err := store.Tables(ctx)
			Expect(err).To(Succeed())
			Expect(tables).To(HaveLen(1))
		})
	})

	It("an empty inmemory store has no tables", func() {
		value, err := store.Backup()
		Expect(err).To(Succeed())
		Expect(string(value)).To(Equal(`{"seq":0,"tables":[]}`))

		tables, err := store.Tables(ctx)
		Expect(err).To(Succeed())
		Expect(tables).To(BeEmpty())
	})

	Describe("CreateTable()", func() {
		It("seats the owner as Red with the default score", func() {
			table, err := store.CreateTable(ctx, "p1", itimes, protocol.Red)
			Expect(err).To(Succeed())

			Expect(table.ID).To(Equal("1"))
			Expect(table.RedID).To(Equal("p1"))
			Expect(table.RedScore).To(Equal(storage.DefaultScore))
			Expect(table.BlackID).To(BeEmpty())
			Expect(table.InitialTime).To(Equal(itimes))
			Expect(table.String()).To(Equal("1;0;0;1200/300/20;1200/300/20;1200/300/20;p1;1500;;0;"))
		})

		It("hands out increasing ids", func() {
			first, err := store.CreateTable(ctx, "p1", itimes, protocol.Red)
			Expect(err).To(Succeed())

			second, err := store.CreateTable(ctx, "p2", itimes, protocol.Black)
			Expect(err).To(Succeed())

			Expect(first.ID).To(Equal("1"))
			Expect(second.ID).To(Equal("2"))
			Expect(second.BlackID).To(Equal("p2"))

			backup, err := store.Backup()
			Expect(err).To(Succeed())
			Expect(gjson.GetBytes(backup, "tables.#").Int()).To(BeEquivalentTo(2))
			Expect(gjson.GetBytes(backup, "seq").Int()).To(BeEquivalentTo(2))
		})
	})

	Describe("Join()", func() {
		BeforeEach(func() {
			_, err := store.CreateTable(ctx, "p1", itimes, protocol.Red)
			Expect(err).To(Succeed())
		})

		It("seats a player in a free seat", func() {
			table, err := store.Join(ctx, "1", "p2", protocol.Black)
			Expect(err).To(Succeed())
			Expect(table.BlackID).To(Equal("p2"))
			Expect(table.BlackScore).To(Equal(storage.DefaultScore))
		})

		It("refuses a seat somebody else holds", func() {
			_, err := store.Join(ctx, "1", "p2", protocol.Red)
			Expect(err).To(MatchError(storage.ErrSeatTaken))
		})

		It("adds observers", func() {
			table, err := store.Join(ctx, "1", "p3", protocol.Observer)
			Expect(err).To(Succeed())
			Expect(table.Observers).To(Equal([]string{"p3"}))
			Expect(table.Has("p3")).To(BeTrue())
		})

		It("moves a player that is already at the table", func() {
			table, err := store.Join(ctx, "1", "p1", protocol.Black)
			Expect(err).To(Succeed())
			Expect(table.RedID).To(BeEmpty())
			Expect(table.BlackID).To(Equal("p1"))
		})

		It("fails for unknown tables", func() {
			_, err := store.Join(ctx, "42", "p2", protocol.Black)
			Expect(err).To(MatchError(storage.ErrTableNotFound))
		})
	})

	Describe("Leave()", func() {
		BeforeEach(func() {
			_, err := store.CreateTable(ctx, "p1", itimes, protocol.Red)
			Expect(err).To(Succeed())

			_, err = store.Join(ctx, "1", "p2", protocol.Black)
			Expect(err).To(Succeed())
		})

		It("frees the seat", func() {
			table, err := store.Leave(ctx, "1", "p2")
			Expect(err).To(Succeed())
			Expect(table.BlackID).To(BeEmpty())
			Expect(table.BlackScore).To(BeZero())

			table, err = store.Table(ctx, "1")
			Expect(err).To(Succeed())
			Expect(table.Has("p2")).To(BeFalse())
		})

		It("removes the table once everyone has left", func() {
			_, err := store.Leave(ctx, "1", "p2")
			Expect(err).To(Succeed())

			_, err = store.Leave(ctx, "1", "p1")
			Expect(err).To(Succeed())

			_, err = store.Table(ctx, "1")
			Expect(err).To(MatchError(storage.ErrTableNotFound))
		})

		It("fails for players that aren't at the table", func() {
			_, err := store.Leave(ctx, "1", "p9")
			Expect(err).To(MatchError(storage.ErrNotAtTable))
		})
	})

	Describe("Restore() / Backup()", func() {
		It("round trips the document", func() {
			doc := `{"seq":7,"tables":[{"id":"7","group":0,"type":0,"itimes":"1200/300/20","redTime":"1200/300/20","blackTime":"1200/300/20","red":"p1","redScore":1500,"black":"","blackScore":0,"observers":["p4"]}]}`
			Expect(store.Restore([]byte(doc))).To(Succeed())

			tables, err := store.Tables(ctx)
			Expect(err).To(Succeed())
			Expect(tables).To(HaveLen(1))
			Expect(tables[0].String()).To(Equal("7;0;0;1200/300/20;1200/300/20;1200/300/20;p1;1500;;0;p4;"))

			next, err := store.CreateTable(ctx, "p2", itimes, protocol.Red)
			Expect(err).To(Succeed())
			Expect(next.ID).To(Equal("8"))
		})

		It("rejects invalid documents", func() {
			Expect(store.Restore([]byte(`{"tables":`))).NotTo(Succeed())
		})
	})
})
