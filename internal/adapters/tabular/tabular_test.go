package tabular_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/okian/celestial/internal/adapters/tabular"
	"github.com/okian/celestial/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func canonicalCSV(sep string, rows int) string {
	var b strings.Builder
	b.WriteString(strings.Join(model.Columns(), sep))
	b.WriteString("\n")
	for i := 0; i < rows; i++ {
		cells := make([]string, model.FeatureCount)
		for j := range cells {
			cells[j] = "1.5"
		}
		b.WriteString(strings.Join(cells, sep))
		b.WriteString("\n")
	}
	return b.String()
}

func TestParse(t *testing.T) {
	Convey("Given CSV uploads", t, func() {
		ctx := context.Background()

		Convey("When the file is comma separated", func() {
			p, err := tabular.Parse(ctx, strings.NewReader(canonicalCSV(",", 2)))

			Convey("Then it should parse on the first attempt", func() {
				So(err, ShouldBeNil)
				So(p.Delimiter, ShouldEqual, tabular.Comma)
				So(p.Fallback(), ShouldBeFalse)
				So(p.Table.Header, ShouldResemble, model.Columns())
				So(p.Table.Len(), ShouldEqual, 2)
				So(p.Skipped, ShouldEqual, 0)
			})
		})

		Convey("When the file is semicolon separated", func() {
			p, err := tabular.Parse(ctx, strings.NewReader(canonicalCSV(";", 3)))

			Convey("Then it should fall back to semicolons", func() {
				So(err, ShouldBeNil)
				So(p.Fallback(), ShouldBeTrue)
				So(p.Table.Header, ShouldResemble, model.Columns())
				So(p.Table.Len(), ShouldEqual, 3)
			})
		})

		Convey("When the file starts with a byte order mark", func() {
			p, err := tabular.ParseBytes(ctx, append([]byte{0xEF, 0xBB, 0xBF}, canonicalCSV(",", 1)...))

			Convey("Then the first header should be clean", func() {
				So(err, ShouldBeNil)
				So(p.Table.Header[0], ShouldEqual, model.ColPeriod)
			})
		})

		Convey("When some rows have the wrong number of fields", func() {
			doc := "a,b,c\n1,2,3\n1,2\n4,5,6\n1,2,3,4\n"
			p, err := tabular.Parse(ctx, strings.NewReader(doc))

			Convey("Then they should be skipped and counted", func() {
				So(err, ShouldBeNil)
				So(p.Table.Records, ShouldResemble, [][]string{{"1", "2", "3"}, {"4", "5", "6"}})
				So(p.Skipped, ShouldEqual, 2)
			})
		})

		Convey("When the file has a single plain column", func() {
			p, err := tabular.Parse(ctx, strings.NewReader("koi_period\n3.5\n"))

			Convey("Then the comma parse should be kept", func() {
				So(err, ShouldBeNil)
				So(p.Fallback(), ShouldBeFalse)
				So(p.Table.Header, ShouldResemble, []string{"koi_period"})
			})
		})

		Convey("When the file is empty", func() {
			_, err := tabular.Parse(ctx, strings.NewReader(""))

			Convey("Then it should report an empty upload", func() {
				So(errors.Is(err, tabular.ErrEmpty), ShouldBeTrue)
			})
		})

		Convey("When a record holds a bare quote", func() {
			p, err := tabular.ParseBytes(ctx, []byte("a,b,c\n1,2,3\n4,5\"x,6\n7,8,9\n"))

			Convey("Then the surrounding rows should survive", func() {
				So(err, ShouldBeNil)
				So(p.Fallback(), ShouldBeFalse)
				So(p.Table.Records, ShouldResemble, [][]string{
					{"1", "2", "3"}, {"4", "5\"x", "6"}, {"7", "8", "9"},
				})
				So(p.Skipped, ShouldEqual, 0)
			})
		})

		Convey("When neither delimiter can parse the header", func() {
			_, err := tabular.Parse(ctx, strings.NewReader("a\"b,c\n1,2\n"))

			Convey("Then the failure should surface", func() {
				So(errors.Is(err, tabular.ErrParse), ShouldBeTrue)
			})
		})

		Convey("When the context is cancelled", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			_, err := tabular.Parse(cctx, strings.NewReader(canonicalCSV(",", 1)))

			Convey("Then parsing should stop", func() {
				So(errors.Is(err, context.Canceled), ShouldBeTrue)
			})
		})
	})
}

func TestWrite(t *testing.T) {
	Convey("Given a classified result", t, func() {
		ctx := context.Background()
		cells := make([]string, model.FeatureCount)
		for i := range cells {
			cells[i] = "2.25"
		}
		res := model.Result{
			Cells:  [][]string{cells, cells, cells},
			Labels: []model.Label{model.LabelConfirmed, model.LabelFalsePositive, model.LabelCandidate},
		}

		Convey("When exporting and parsing the export again", func() {
			raw, err := tabular.Encode(res)
			So(err, ShouldBeNil)
			back, err := tabular.ParseBytes(ctx, raw)

			Convey("Then row count and predictions should round-trip", func() {
				So(err, ShouldBeNil)
				So(back.Table.Header, ShouldResemble, tabular.Header())
				So(back.Table.Len(), ShouldEqual, res.Len())
				col := back.Table.Column(model.PredictionColumn)
				So(col, ShouldResemble, []string{"Confirmed", "False Positive", "Candidate"})
				So(back.Table.Column(model.ColKepmag), ShouldResemble, []string{"2.25", "2.25", "2.25"})
			})
		})

		Convey("When labels and rows disagree", func() {
			res.Labels = res.Labels[:1]
			err := tabular.Write(&bytes.Buffer{}, res)

			Convey("Then export should fail", func() {
				So(errors.Is(err, tabular.ErrExport), ShouldBeTrue)
			})
		})

		Convey("When a row is short", func() {
			res.Cells = [][]string{{"1"}}
			res.Labels = res.Labels[:1]
			err := tabular.Write(&bytes.Buffer{}, res)

			Convey("Then export should fail", func() {
				So(errors.Is(err, tabular.ErrExport), ShouldBeTrue)
			})
		})
	})
}
