package service_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	service "github.com/okian/celestial/internal/app"
	"github.com/okian/celestial/internal/domain/model"
	"github.com/okian/celestial/internal/domain/prediction"
	"github.com/okian/celestial/internal/domain/schema"
	"github.com/okian/celestial/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	if err := logger.Init(); err != nil {
		panic(err)
	}
	goleak.VerifyTestMain(m)
}

// periodPredictor labels rows by period: >10 Confirmed, <1 False Positive,
// otherwise Candidate.
type periodPredictor struct {
	err   error
	calls atomic.Int64
}

func (p *periodPredictor) Strategy() string { return "stub" }

func (p *periodPredictor) Predict(_ context.Context, rows []model.Row) ([]model.Label, error) {
	p.calls.Add(1)
	if p.err != nil {
		return nil, p.err
	}
	out := make([]model.Label, len(rows))
	for i, r := range rows {
		switch {
		case r.Period > 10:
			out[i] = model.LabelConfirmed
		case r.Period < 1:
			out[i] = model.LabelFalsePositive
		default:
			out[i] = model.LabelCandidate
		}
	}
	return out, nil
}

// koiCSV builds a canonical CSV with one row per period; every other
// feature is 1.
func koiCSV(header []string, periods ...float64) string {
	var b strings.Builder
	b.WriteString(strings.Join(header, ","))
	b.WriteByte('\n')
	for _, p := range periods {
		cells := make([]string, len(header))
		for i := range cells {
			cells[i] = "1"
		}
		cells[0] = fmt.Sprint(p)
		b.WriteString(strings.Join(cells, ","))
		b.WriteByte('\n')
	}
	return b.String()
}

func startService(p *periodPredictor, opts ...service.Option) *service.Service {
	svc := service.New(append([]service.Option{
		service.WithWorkerCount(2),
		service.WithPredictor(p),
	}, opts...)...)
	if err := svc.Start(context.Background()); err != nil {
		panic(err)
	}
	return svc
}

func stop(svc *service.Service) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = svc.Stop(ctx)
}

func TestService_Lifecycle(t *testing.T) {
	Convey("Given a new service", t, func() {
		svc := service.New(service.WithPredictor(&periodPredictor{}), service.WithWorkerCount(2))

		Convey("Then operations fail before Start", func() {
			_, err := svc.StageUpload(context.Background(), "a.csv", strings.NewReader("x\n1\n"))
			So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
			_, err = svc.ClassifyRow(context.Background(), model.Row{})
			So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
			So(svc.GetStats()["started"], ShouldEqual, false)
		})

		Convey("When started and stopped", func() {
			So(svc.Start(context.Background()), ShouldBeNil)
			So(svc.Start(context.Background()), ShouldBeNil)
			So(svc.Strategy(), ShouldEqual, "stub")
			So(svc.GetStats()["started"], ShouldEqual, true)
			So(svc.GetStats()["workerCount"], ShouldEqual, 2)

			stop(svc)

			Convey("Then it reports stopped", func() {
				So(svc.GetStats()["started"], ShouldEqual, false)
				So(svc.Stop(context.Background()), ShouldBeNil)
			})
		})

		Convey("When Start gets a cancelled context", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			So(errors.Is(svc.Start(ctx), context.Canceled), ShouldBeTrue)
		})
	})
}

func TestService_StageUpload(t *testing.T) {
	Convey("Given a started service", t, func() {
		svc := startService(&periodPredictor{})
		defer stop(svc)
		ctx := context.Background()

		Convey("When staging a canonical upload", func() {
			u, err := svc.StageUpload(ctx, "koi.csv", strings.NewReader(koiCSV(model.Columns(), 1, 2)))
			So(err, ShouldBeNil)

			Convey("Then it is complete and retrievable", func() {
				So(u.ID, ShouldNotBeEmpty)
				So(u.Complete(), ShouldBeTrue)
				So(u.Renames, ShouldBeEmpty)
				So(u.Table.Len(), ShouldEqual, 2)

				got, err := svc.Upload(ctx, u.ID)
				So(err, ShouldBeNil)
				So(got.ID, ShouldEqual, u.ID)
				So(got.Filename, ShouldEqual, "koi.csv")
			})
		})

		Convey("When an upload uses an aliased column and lacks koi_kepmag", func() {
			header := append([]string{"Orbital Period (days)"}, model.Columns()[1:12]...)
			u, err := svc.StageUpload(ctx, "partial.csv", strings.NewReader(koiCSV(header, 3)))
			So(err, ShouldBeNil)

			Convey("Then the rename and the missing column are reported", func() {
				So(u.Renames, ShouldResemble, []schema.Rename{{From: "orbital period (days)", To: model.ColPeriod}})
				So(u.Missing, ShouldResemble, []string{model.ColKepmag})
				So(u.Complete(), ShouldBeFalse)
			})

			Convey("And prediction is withheld", func() {
				_, err := svc.PredictUpload(ctx, u.ID)
				var mce *schema.MissingColumnsError
				So(errors.As(err, &mce), ShouldBeTrue)
				So(mce.Missing, ShouldResemble, []string{model.ColKepmag})
			})
		})

		Convey("When the upload is empty", func() {
			_, err := svc.StageUpload(ctx, "empty.csv", strings.NewReader(""))
			So(err, ShouldNotBeNil)
		})

		Convey("When the upload id is unknown", func() {
			_, err := svc.Upload(ctx, "nope")
			So(errors.Is(err, service.ErrNotFound), ShouldBeTrue)
			_, err = svc.PredictUpload(ctx, "nope")
			So(errors.Is(err, service.ErrNotFound), ShouldBeTrue)
		})
	})
}

func TestService_Classify(t *testing.T) {
	Convey("Given a service with small chunks", t, func() {
		p := &periodPredictor{}
		svc := startService(p, service.WithChunkSize(2))
		defer stop(svc)
		ctx := context.Background()

		Convey("When classifying several chunks worth of rows", func() {
			periods := []float64{20, 0.5, 3, 11, 0.1, 4, 50}
			b, err := svc.Classify(ctx, "koi.csv", strings.NewReader(koiCSV(model.Columns(), periods...)))
			So(err, ShouldBeNil)

			Convey("Then labels come back in row order", func() {
				So(b.Strategy, ShouldEqual, "stub")
				So(b.Result.Labels, ShouldResemble, []model.Label{
					model.LabelConfirmed, model.LabelFalsePositive, model.LabelCandidate,
					model.LabelConfirmed, model.LabelFalsePositive, model.LabelCandidate,
					model.LabelConfirmed,
				})
				So(len(b.Result.Cells), ShouldEqual, len(periods))
				So(b.Result.Cells[0][0], ShouldEqual, "20")
				So(p.calls.Load(), ShouldEqual, 4)
			})

			Convey("And the result is stored under its id", func() {
				got, err := svc.Result(ctx, b.ID)
				So(err, ShouldBeNil)
				So(got.ID, ShouldEqual, b.ID)
				So(got.Result.Counts()[model.LabelConfirmed], ShouldEqual, 3)
			})
		})

		Convey("When the staged upload is classified later", func() {
			u, err := svc.StageUpload(ctx, "koi.csv", strings.NewReader(koiCSV(model.Columns(), 12)))
			So(err, ShouldBeNil)
			b, err := svc.PredictUpload(ctx, u.ID)
			So(err, ShouldBeNil)
			So(b.Result.Labels, ShouldResemble, []model.Label{model.LabelConfirmed})
		})

		Convey("When a value is not numeric", func() {
			csv := strings.Replace(koiCSV(model.Columns(), 1), "1,1", "x,1", 1)
			_, err := svc.Classify(ctx, "bad.csv", strings.NewReader(csv))
			So(errors.Is(err, schema.ErrInvalidValue), ShouldBeTrue)
		})

		Convey("When the upload has a header only", func() {
			b, err := svc.Classify(ctx, "head.csv", strings.NewReader(koiCSV(model.Columns())))
			So(err, ShouldBeNil)
			So(b.Result.Len(), ShouldEqual, 0)
		})

		Convey("When the result id is unknown", func() {
			_, err := svc.Result(ctx, "nope")
			So(errors.Is(err, service.ErrNotFound), ShouldBeTrue)
		})
	})

	Convey("Given a predictor that fails", t, func() {
		svc := startService(&periodPredictor{err: errors.New("boom")})
		defer stop(svc)

		Convey("Then batch and row classification report ErrClassify", func() {
			_, err := svc.Classify(context.Background(), "koi.csv", strings.NewReader(koiCSV(model.Columns(), 1)))
			So(errors.Is(err, service.ErrClassify), ShouldBeTrue)

			_, err = svc.ClassifyRow(context.Background(), model.Row{})
			So(errors.Is(err, service.ErrClassify), ShouldBeTrue)
		})
	})
}

func TestService_ClassifyRow(t *testing.T) {
	Convey("Given a started service", t, func() {
		svc := startService(&periodPredictor{})
		defer stop(svc)

		Convey("When classifying a single row", func() {
			label, err := svc.ClassifyRow(context.Background(), model.Row{Period: 0.5})
			So(err, ShouldBeNil)
			So(label, ShouldEqual, model.LabelFalsePositive)
		})
	})
}

// writeArtifacts writes an identity standard scaler and a linear model that
// scores on koi_period alone: Confirmed for large periods, False Positive for
// large negative ones and Candidate near zero.
func writeArtifacts(dir string) (modelPath, scalerPath string) {
	vec := func(first, rest string) string {
		parts := make([]string, model.FeatureCount)
		for i := range parts {
			parts[i] = rest
		}
		parts[0] = first
		return "[" + strings.Join(parts, ",") + "]"
	}
	modelPath = filepath.Join(dir, "exoplanet_model.json")
	scalerPath = filepath.Join(dir, "scaler.json")
	clf := `{"kind": "linear", "classes": [0, 1, 2], "coef": [` +
		vec("-1", "0") + `,` + vec("1", "0") + `,` + vec("0", "0") + `], "intercept": [0, 0, 0.5]}`
	sc := `{"kind": "standard", "mean": ` + vec("0", "0") + `, "scale": ` + vec("1", "1") + `}`
	if err := os.WriteFile(modelPath, []byte(clf), 0o600); err != nil {
		panic(err)
	}
	if err := os.WriteFile(scalerPath, []byte(sc), 0o600); err != nil {
		panic(err)
	}
	return modelPath, scalerPath
}

func TestService_ModelArtifacts(t *testing.T) {
	Convey("Given model artifacts on disk", t, func() {
		modelPath, scalerPath := writeArtifacts(t.TempDir())
		svc := service.New(
			service.WithWorkerCount(2),
			service.WithChunkSize(2),
			service.WithArtifactPaths(modelPath, scalerPath),
		)
		So(svc.Start(context.Background()), ShouldBeNil)
		defer stop(svc)
		ctx := context.Background()

		Convey("Then the model strategy is selected at startup", func() {
			So(svc.Strategy(), ShouldEqual, prediction.StrategyModel)
			So(svc.ModelLoaded(), ShouldBeTrue)
		})

		Convey("When classifying the same upload twice", func() {
			doc := koiCSV(model.Columns(), 5, -5, 0.2, 30)
			first, err := svc.Classify(ctx, "koi.csv", strings.NewReader(doc))
			So(err, ShouldBeNil)
			second, err := svc.Classify(ctx, "koi.csv", strings.NewReader(doc))
			So(err, ShouldBeNil)

			Convey("Then the labels follow the model and repeat exactly", func() {
				want := []model.Label{
					model.LabelConfirmed, model.LabelFalsePositive,
					model.LabelCandidate, model.LabelConfirmed,
				}
				So(first.Strategy, ShouldEqual, prediction.StrategyModel)
				So(first.Result.Labels, ShouldResemble, want)
				So(second.Result.Labels, ShouldResemble, want)
			})
		})

		Convey("When classifying a single row", func() {
			label, err := svc.ClassifyRow(ctx, model.Row{Period: -3})
			So(err, ShouldBeNil)
			So(label, ShouldEqual, model.LabelFalsePositive)
		})
	})
}
