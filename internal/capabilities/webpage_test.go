package capabilities

import "testing"

func TestParseTableRows(t *testing.T) {
	text := `F1 Championship Standings

| Pos | Driver | Points |
|-----|--------|--------|
| 1 | Verstappen | 437 |
| 2 | Norris | 374 |

Some trailing prose without pipes.`

	rows := ParseTableRows(text)
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows (header + 2 data), got %d: %v", len(rows), rows)
	}

	header, ok := rows[0].([]any)
	if !ok || len(header) != 3 {
		t.Fatalf("unexpected header row: %v", rows[0])
	}
	if header[1] != "Driver" {
		t.Errorf("expected header cell Driver, got %v", header[1])
	}

	second, _ := rows[2].([]any)
	if second[1] != "Norris" || second[2] != "374" {
		t.Errorf("unexpected data row: %v", second)
	}
}

func TestParseTableRowsNoTables(t *testing.T) {
	if rows := ParseTableRows("just plain text\nwith no tables at all"); len(rows) != 0 {
		t.Errorf("expected no rows, got %v", rows)
	}
}

func TestParseTableRowsSkipsSeparators(t *testing.T) {
	rows := ParseTableRows("| a | b |\n| --- | :--- |\n| 1 | 2 |")
	if len(rows) != 2 {
		t.Fatalf("separator line should be dropped, got %d rows: %v", len(rows), rows)
	}
}
