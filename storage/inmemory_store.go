package storage

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/luma/hoxconform/protocol"
)

const emptyDocument = `{"seq":0,"tables":[]}`

// InmemoryStore keeps every table in a single JSON document:
//
//   {"seq":1,"tables":[{"id":"1","itimes":"20/300/25","red":"p1",...}]}
type InmemoryStore struct {
	mu     sync.Mutex
	values []byte

	// stop will be closed when Close() is called
	stop chan struct{}
}

func NewInmemoryStore() *InmemoryStore {
	return &InmemoryStore{
		values: []byte(emptyDocument),
		stop:   make(chan struct{}),
	}
}

func (i *InmemoryStore) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.isRunning() {
		close(i.stop)
	}

	return nil
}

func (i *InmemoryStore) CreateTable(
	ctx context.Context,
	owner string,
	itimes protocol.Times,
	color protocol.Color,
) (*protocol.TableInfo, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if !i.isRunning() {
		return nil, ErrStoreClosed
	}

	seq := gjson.GetBytes(i.values, "seq").Int() + 1
	id := strconv.FormatInt(seq, 10)

	table := map[string]interface{}{
		"id":         id,
		"group":      0,
		"type":       0,
		"itimes":     itimes.String(),
		"redTime":    itimes.String(),
		"blackTime":  itimes.String(),
		"red":        "",
		"redScore":   0,
		"black":      "",
		"blackScore": 0,
		"observers":  []string{},
	}

	switch color {
	case protocol.Black:
		table["black"] = owner
		table["blackScore"] = DefaultScore

	case protocol.Observer:
		table["observers"] = []string{owner}

	default:
		table["red"] = owner
		table["redScore"] = DefaultScore
	}

	values, err := sjson.SetBytes(i.values, "tables.-1", table)
	if err != nil {
		return nil, err
	}

	if values, err = sjson.SetBytes(values, "seq", seq); err != nil {
		return nil, err
	}

	i.values = values

	return i.get(id)
}

func (i *InmemoryStore) Table(ctx context.Context, id string) (*protocol.TableInfo, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	return i.get(id)
}

func (i *InmemoryStore) Tables(ctx context.Context) ([]*protocol.TableInfo, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	results := gjson.GetBytes(i.values, "tables").Array()
	tables := make([]*protocol.TableInfo, 0, len(results))

	for _, r := range results {
		t, err := toTableInfo(r)
		if err != nil {
			return nil, err
		}

		tables = append(tables, t)
	}

	return tables, nil
}

func (i *InmemoryStore) Join(
	ctx context.Context,
	id, player string,
	color protocol.Color,
) (*protocol.TableInfo, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if !i.isRunning() {
		return nil, ErrStoreClosed
	}

	idx, table, err := i.find(id)
	if err != nil {
		return nil, err
	}

	seat := ""
	switch color {
	case protocol.Red:
		seat = "red"
	case protocol.Black:
		seat = "black"
	}

	if seat != "" {
		if occupant := table.Get(seat).String(); occupant != "" && occupant != player {
			return nil, fmt.Errorf("Failed to join table %s as %s: %w", id, color, ErrSeatTaken)
		}
	}

	values, err := removePlayer(i.values, idx, table, player)
	if err != nil {
		return nil, err
	}

	prefix := fmt.Sprintf("tables.%d.", idx)

	if seat == "" {
		values, err = sjson.SetBytes(values, prefix+"observers.-1", player)
	} else {
		values, err = sjson.SetBytes(values, prefix+seat, player)
		if err == nil {
			values, err = sjson.SetBytes(values, prefix+seat+"Score", DefaultScore)
		}
	}

	if err != nil {
		return nil, err
	}

	i.values = values

	return i.get(id)
}

func (i *InmemoryStore) Leave(ctx context.Context, id, player string) (*protocol.TableInfo, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if !i.isRunning() {
		return nil, ErrStoreClosed
	}

	idx, table, err := i.find(id)
	if err != nil {
		return nil, err
	}

	before, err := toTableInfo(table)
	if err != nil {
		return nil, err
	}

	if !before.Has(player) {
		return nil, fmt.Errorf("Failed to leave table %s: %w", id, ErrNotAtTable)
	}

	values, err := removePlayer(i.values, idx, table, player)
	if err != nil {
		return nil, err
	}

	after, err := toTableInfo(gjson.GetBytes(values, fmt.Sprintf("tables.%d", idx)))
	if err != nil {
		return nil, err
	}

	if after.RedID == "" && after.BlackID == "" && len(after.Observers) == 0 {
		// Nobody left, clean the table up
		if values, err = sjson.DeleteBytes(values, fmt.Sprintf("tables.%d", idx)); err != nil {
			return nil, err
		}
	}

	i.values = values

	return after, nil
}

func (i *InmemoryStore) Restore(values []byte) error {
	if !gjson.ValidBytes(values) {
		return fmt.Errorf("Failed to restore: invalid JSON")
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	if !i.isRunning() {
		return ErrStoreClosed
	}

	i.values = values
	return nil
}

func (i *InmemoryStore) Backup() ([]byte, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if len(i.values) == 0 {
		return []byte(emptyDocument), nil
	}

	return append([]byte(nil), i.values...), nil
}

// get must be called with mu held
func (i *InmemoryStore) get(id string) (*protocol.TableInfo, error) {
	_, table, err := i.find(id)
	if err != nil {
		return nil, err
	}

	return toTableInfo(table)
}

// find must be called with mu held
func (i *InmemoryStore) find(id string) (int, gjson.Result, error) {
	for idx, table := range gjson.GetBytes(i.values, "tables").Array() {
		if table.Get("id").String() == id {
			return idx, table, nil
		}
	}

	return -1, gjson.Result{}, fmt.Errorf("Failed to find table '%s': %w", id, ErrTableNotFound)
}

// isRunning returns true if Close has not been called
func (i *InmemoryStore) isRunning() bool {
	select {
	case <-i.stop:
		return false

	default:
		return true
	}
}

func removePlayer(values []byte, idx int, table gjson.Result, player string) ([]byte, error) {
	var err error
	prefix := fmt.Sprintf("tables.%d.", idx)

	for _, seat := range []string{"red", "black"} {
		if table.Get(seat).String() != player {
			continue
		}

		if values, err = sjson.SetBytes(values, prefix+seat, ""); err != nil {
			return nil, err
		}

		if values, err = sjson.SetBytes(values, prefix+seat+"Score", 0); err != nil {
			return nil, err
		}
	}

	observers := table.Get("observers").Array()

	// Walk backwards so deleting doesn't shift the indexes still to visit
	for j := len(observers) - 1; j >= 0; j-- {
		if observers[j].String() != player {
			continue
		}

		if values, err = sjson.DeleteBytes(values, fmt.Sprintf("%sobservers.%d", prefix, j)); err != nil {
			return nil, err
		}
	}

	return values, nil
}

func toTableInfo(r gjson.Result) (*protocol.TableInfo, error) {
	if !r.Exists() {
		return nil, ErrTableNotFound
	}

	var (
		t   protocol.TableInfo
		err error
	)

	t.ID = r.Get("id").String()
	t.Group = int(r.Get("group").Int())
	t.Type = int(r.Get("type").Int())

	if t.InitialTime, err = protocol.ParseTimes(r.Get("itimes").String()); err != nil {
		return nil, err
	}

	if t.RedTime, err = protocol.ParseTimes(r.Get("redTime").String()); err != nil {
		return nil, err
	}

	if t.BlackTime, err = protocol.ParseTimes(r.Get("blackTime").String()); err != nil {
		return nil, err
	}

	t.RedID = r.Get("red").String()
	t.RedScore = int(r.Get("redScore").Int())
	t.BlackID = r.Get("black").String()
	t.BlackScore = int(r.Get("blackScore").Int())

	for _, o := range r.Get("observers").Array() {
		t.Observers = append(t.Observers, o.String())
	}

	return &t, nil
}

var _ Store = (*InmemoryStore)(nil)
