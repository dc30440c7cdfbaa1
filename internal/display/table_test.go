package display

import (
	"strings"
	"testing"
)

func TestTableRendersHeaderAndRows(t *testing.T) {
	tbl := NewTable("CELL", "TOTAL", "ACCURACY")
	tbl.AlignRight(2, 3)
	tbl.Row("1-shot @ 0.50", 6, "100.00%")
	tbl.Row("5-shot @ 0.90", 6, "83.33%")

	out := tbl.String()
	for _, want := range []string{"CELL", "TOTAL", "ACCURACY", "1-shot @ 0.50", "5-shot @ 0.90", "100.00%"} {
		if !strings.Contains(out, want) {
			t.Errorf("rendered table missing %q:\n%s", want, out)
		}
	}
	if strings.Index(out, "CELL") > strings.Index(out, "1-shot @ 0.50") {
		t.Errorf("header not before rows:\n%s", out)
	}
}
