package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

type Color string

const (
	Red      Color = "Red"
	Black    Color = "Black"
	Observer Color = "None"
)

// ParseColor maps a wire color to a Color, defaulting to Observer for
// anything it does not recognise.
func ParseColor(s string) Color {
	switch Color(s) {
	case Red, Black:
		return Color(s)

	default:
		return Observer
	}
}

// Times is a game/move/free timer triple, `20/300/25` on the wire.
type Times struct {
	Game int
	Move int
	Free int
}

// ParseTimes parses `<game>/<move>/<free>`. Missing trailing parts are zero,
// extra parts are ignored.
func ParseTimes(s string) (Times, error) {
	var t Times

	if s == "" {
		return t, nil
	}

	parts := strings.Split(s, "/")
	fields := []*int{&t.Game, &t.Move, &t.Free}

	for i, part := range parts {
		if i >= len(fields) {
			break
		}

		n, err := strconv.Atoi(part)
		if err != nil {
			return Times{}, fmt.Errorf("Failed to parse times '%s': %w", s, ErrMalformedTable)
		}

		*fields[i] = n
	}

	return t, nil
}

func (t Times) String() string {
	return fmt.Sprintf("%d/%d/%d", t.Game, t.Move, t.Free)
}

// TableInfo is the structured form of a table descriptor.
type TableInfo struct {
	ID          string
	Group       int
	Type        int
	InitialTime Times
	RedTime     Times
	BlackTime   Times
	RedID       string
	RedScore    int
	BlackID     string
	BlackScore  int
	Observers   []string
}

const tableFields = 10

// ParseTable parses a single table descriptor. Empty fields are kept, so
// `1;0;0;20/300/25;20/300/25;20/300/25;p1;1500;;0;` has an empty BlackID.
func ParseTable(s string) (*TableInfo, error) {
	fields := strings.Split(strings.TrimRight(s, "\n"), ";")

	if len(fields) < tableFields {
		return nil, fmt.Errorf("Failed to parse table '%s', %d fields: %w", s, len(fields), ErrMalformedTable)
	}

	var (
		t   TableInfo
		err error
	)

	t.ID = fields[0]

	ints := []struct {
		dst *int
		src string
	}{
		{&t.Group, fields[1]},
		{&t.Type, fields[2]},
		{&t.RedScore, fields[7]},
		{&t.BlackScore, fields[9]},
	}

	for _, i := range ints {
		if *i.dst, err = atoiOrZero(i.src); err != nil {
			return nil, fmt.Errorf("Failed to parse table '%s': %w", s, ErrMalformedTable)
		}
	}

	if t.InitialTime, err = ParseTimes(fields[3]); err != nil {
		return nil, err
	}

	if t.RedTime, err = ParseTimes(fields[4]); err != nil {
		return nil, err
	}

	if t.BlackTime, err = ParseTimes(fields[5]); err != nil {
		return nil, err
	}

	t.RedID = fields[6]
	t.BlackID = fields[8]

	for _, o := range fields[tableFields:] {
		if o != "" {
			t.Observers = append(t.Observers, o)
		}
	}

	return &t, nil
}

// ParseTables parses a LIST content, one descriptor per row.
func ParseTables(content string) ([]*TableInfo, error) {
	resp := Response{Content: content}
	rows := resp.Rows()
	tables := make([]*TableInfo, 0, len(rows))

	for _, row := range rows {
		t, err := ParseTable(row)
		if err != nil {
			return nil, err
		}

		tables = append(tables, t)
	}

	return tables, nil
}

// String formats the descriptor exactly as the server sends it, including the
// trailing ';'.
func (t *TableInfo) String() string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s;%d;%d;%s;%s;%s;%s;%d;%s;%d;",
		t.ID, t.Group, t.Type,
		t.InitialTime, t.RedTime, t.BlackTime,
		t.RedID, t.RedScore, t.BlackID, t.BlackScore)

	for _, o := range t.Observers {
		b.WriteString(o)
		b.WriteByte(';')
	}

	return b.String()
}

// Has reports whether playerID is seated at, or observing, the table.
func (t *TableInfo) Has(playerID string) bool {
	if playerID == "" {
		return false
	}

	if t.RedID == playerID || t.BlackID == playerID {
		return true
	}

	for _, o := range t.Observers {
		if o == playerID {
			return true
		}
	}

	return false
}

func atoiOrZero(s string) (int, error) {
	if s == "" {
		return 0, nil
	}

	return strconv.Atoi(s)
}
