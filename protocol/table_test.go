package protocol_test

import (
	"errors"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/luma/hoxconform/protocol"
)

var _ = Describe("Tables", func() {
	const descriptor = "1;0;0;20/300/25;20/300/25;20/300/25;p1;1500;;0;"

	Describe("ParseTable()", func() {
		It("parses a freshly created table", func() {
			t, err := protocol.ParseTable(descriptor)
			Expect(err).To(Succeed())
			Expect(t.ID).To(Equal("1"))
			Expect(t.InitialTime).To(Equal(protocol.Times{Game: 20, Move: 300, Free: 25}))
			Expect(t.RedID).To(Equal("p1"))
			Expect(t.RedScore).To(Equal(1500))
			Expect(t.BlackID).To(BeEmpty())
			Expect(t.Observers).To(BeEmpty())
		})

		It("round trips through String()", func() {
			t, err := protocol.ParseTable(descriptor)
			Expect(err).To(Succeed())
			Expect(t.String()).To(Equal(descriptor))
		})

		It("collects observers", func() {
			t, err := protocol.ParseTable("2;0;0;1/2/3;1/2/3;1/2/3;p1;1500;p2;1500;p3;p4;")
			Expect(err).To(Succeed())
			Expect(t.Observers).To(Equal([]string{"p3", "p4"}))
			Expect(t.Has("p4")).To(BeTrue())
			Expect(t.Has("p5")).To(BeFalse())
		})

		It("returns an error for short descriptors", func() {
			_, err := protocol.ParseTable("1;0;0")
			Expect(errors.Is(err, protocol.ErrMalformedTable)).To(BeTrue())
		})

		It("returns an error for bad times", func() {
			_, err := protocol.ParseTable("1;0;0;a/b/c;;;p1;1500;;0;")
			Expect(errors.Is(err, protocol.ErrMalformedTable)).To(BeTrue())
		})
	})

	Describe("ParseTables()", func() {
		It("returns nothing for an empty listing", func() {
			Expect(protocol.ParseTables("")).To(BeEmpty())
		})

		It("parses one table per row", func() {
			tables, err := protocol.ParseTables(descriptor + "\n" + "2;0;0;1/2/3;1/2/3;1/2/3;p2;1500;;0;")
			Expect(err).To(Succeed())
			Expect(tables).To(HaveLen(2))
			Expect(tables[1].RedID).To(Equal("p2"))
		})
	})

	Describe("ParseColor()", func() {
		It("defaults to observer", func() {
			Expect(protocol.ParseColor("Red")).To(Equal(protocol.Red))
			Expect(protocol.ParseColor("Black")).To(Equal(protocol.Black))
			Expect(protocol.ParseColor("Green")).To(Equal(protocol.Observer))
		})
	})
})
