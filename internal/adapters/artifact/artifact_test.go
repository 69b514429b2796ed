package artifact_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/okian/celestial/internal/adapters/artifact"
	"github.com/okian/celestial/internal/domain/model"
	"github.com/okian/celestial/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

func writeFile(dir, name, content string) string {
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		panic(err)
	}
	return path
}

func repeat(v string) string {
	parts := make([]string, model.FeatureCount)
	for i := range parts {
		parts[i] = v
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// oneHot returns a coefficient row weighting only the feature at idx.
func oneHot(idx int, w string) string {
	parts := make([]string, model.FeatureCount)
	for i := range parts {
		parts[i] = "0"
	}
	parts[idx] = w
	return "[" + strings.Join(parts, ",") + "]"
}

// linearModel prefers class 1 when koi_model_snr is high and class 0 otherwise.
func linearModel() string {
	return `{
  "kind": "linear",
  "classes": [0, 1, 2],
  "coef": [` + oneHot(8, "-1") + `, ` + oneHot(8, "1") + `, ` + oneHot(8, "0") + `],
  "intercept": [0, 0, 0.5]
}`
}

const standardScaler = `{"kind": "standard", "mean": %s, "scale": %s}`

func featureRow(snr float64) []float64 {
	row := model.Row{ModelSNR: snr}
	return row.Vector()
}

func TestLoad(t *testing.T) {
	Convey("Given JSON artifacts on disk", t, func() {
		ctx := context.Background()
		dir := t.TempDir()
		modelPath := writeFile(dir, "exoplanet_model.json", linearModel())
		scalerPath := writeFile(dir, "scaler.json",
			strings.Replace(strings.Replace(standardScaler, "%s", repeat("0"), 1), "%s", repeat("1"), 1))

		Convey("When loading them", func() {
			b, err := artifact.Load(ctx, modelPath, scalerPath)

			Convey("Then both should be available", func() {
				So(err, ShouldBeNil)
				So(b.Loaded(), ShouldBeTrue)
				So(b.ClassifierKind, ShouldEqual, artifact.ClassifierLinear)
				So(b.ScalerKind, ShouldEqual, artifact.ScalerStandard)
			})

			Convey("And the classifier should follow its coefficients", func() {
				x, err := b.Scaler.Transform([][]float64{featureRow(5), featureRow(-5), featureRow(0)})
				So(err, ShouldBeNil)
				classes, err := b.Classifier.Predict(x)
				So(err, ShouldBeNil)
				So(classes, ShouldResemble, []int{1, 0, 2})
			})
		})

		Convey("When the scaler file is missing", func() {
			b, err := artifact.Load(ctx, modelPath, filepath.Join(dir, "nope.json"))

			Convey("Then both artifacts should be absent", func() {
				So(errors.Is(err, artifact.ErrRead), ShouldBeTrue)
				So(b.Loaded(), ShouldBeFalse)
				So(b.Classifier, ShouldBeNil)
				So(b.Scaler, ShouldBeNil)
			})
		})

		Convey("When the model file is garbage", func() {
			bad := writeFile(dir, "bad.json", "\x80\x04pickle")
			b, err := artifact.Load(ctx, bad, scalerPath)

			Convey("Then loading should fail with a decode error", func() {
				So(errors.Is(err, artifact.ErrDecode), ShouldBeTrue)
				So(b.Loaded(), ShouldBeFalse)
			})
		})

		Convey("When the scaler has the wrong dimension", func() {
			short := writeFile(dir, "short.json", `{"kind":"standard","mean":[0,0],"scale":[1,1]}`)
			_, err := artifact.Load(ctx, modelPath, short)

			Convey("Then loading should fail with a dimension error", func() {
				So(errors.Is(err, artifact.ErrDimension), ShouldBeTrue)
			})
		})

		Convey("When the model lists features in a different order", func() {
			cols := model.Columns()
			cols[0], cols[1] = cols[1], cols[0]
			withFeatures := strings.Replace(linearModel(), `"kind": "linear",`,
				`"kind": "linear", "features": ["`+strings.Join(cols, `","`)+`"],`, 1)
			path := writeFile(dir, "reordered.json", withFeatures)
			_, err := artifact.Load(ctx, path, scalerPath)

			Convey("Then loading should fail", func() {
				So(errors.Is(err, artifact.ErrFeatureOrder), ShouldBeTrue)
			})
		})

		Convey("When the model kind is unknown", func() {
			path := writeFile(dir, "svm.json", `{"kind":"svm","classes":[0,1,2]}`)
			_, err := artifact.Load(ctx, path, scalerPath)

			Convey("Then loading should fail", func() {
				So(errors.Is(err, artifact.ErrUnknownKind), ShouldBeTrue)
			})
		})
	})

	Convey("Given YAML artifacts with a forest and a min-max scaler", t, func() {
		ctx := context.Background()
		dir := t.TempDir()
		forest := `
kind: forest
classes: [0, 1, 2]
trees:
  - nodes:
      - {feature: 8, threshold: 0.5, left: 1, right: 2}
      - {left: -1, right: -1, value: [10, 0, 0]}
      - {left: -1, right: -1, value: [0, 8, 2]}
  - nodes:
      - {feature: 8, threshold: 0.9, left: 1, right: 2}
      - {left: -1, right: -1, value: [0, 0, 5]}
      - {left: -1, right: -1, value: [0, 5, 0]}
`
		scaler := "kind: minmax\nmin: " + repeat("0") + "\nmax: " + repeat("10") + "\n"
		modelPath := writeFile(dir, "model.yaml", forest)
		scalerPath := writeFile(dir, "scaler.yml", scaler)

		Convey("When loading them", func() {
			b, err := artifact.Load(ctx, modelPath, scalerPath)

			Convey("Then the forest should average its trees", func() {
				So(err, ShouldBeNil)
				So(b.ClassifierKind, ShouldEqual, artifact.ClassifierForest)
				So(b.ScalerKind, ShouldEqual, artifact.ScalerMinMax)

				x, err := b.Scaler.Transform([][]float64{featureRow(1), featureRow(7), featureRow(10)})
				So(err, ShouldBeNil)
				classes, err := b.Classifier.Predict(x)
				So(err, ShouldBeNil)
				// 0.1 -> tree1 class 0 (1.0), tree2 class 2 (1.0): tie resolves to class 0.
				// 0.7 -> tree1 {0,.8,.2}, tree2 class 2: class 2 wins with 1.2.
				// 1.0 -> tree1 {0,.8,.2}, tree2 class 1: class 1 wins with 1.8.
				So(classes, ShouldResemble, []int{0, 2, 1})
			})
		})

		Convey("When a YAML file carries an unknown field", func() {
			path := writeFile(dir, "extra.yaml", "kind: minmax\nmin: "+repeat("0")+"\nmax: "+repeat("1")+"\ncolour: blue\n")
			_, err := artifact.Load(ctx, modelPath, path)

			Convey("Then it should be rejected", func() {
				So(errors.Is(err, artifact.ErrDecode), ShouldBeTrue)
			})
		})

		Convey("When a tree points backwards", func() {
			path := writeFile(dir, "loop.yaml", `
kind: forest
classes: [0, 1]
trees:
  - nodes:
      - {feature: 0, threshold: 1, left: 0, right: 1}
      - {left: -1, right: -1, value: [1, 0]}
`)
			_, err := artifact.Load(ctx, path, scalerPath)

			Convey("Then it should be rejected", func() {
				So(errors.Is(err, artifact.ErrTreeLayout), ShouldBeTrue)
			})
		})
	})
}

func TestCache(t *testing.T) {
	Convey("Given a cache over missing files", t, func() {
		ctx := context.Background()
		dir := t.TempDir()
		c := artifact.NewCache(filepath.Join(dir, "exoplanet_model.json"), filepath.Join(dir, "scaler.json"))

		Convey("When getting the bundle", func() {
			b := c.Get(ctx)

			Convey("Then it should be empty without panicking", func() {
				So(b.Loaded(), ShouldBeFalse)
				So(c.Err(), ShouldNotBeNil)
			})
		})
	})

	Convey("Given a cache over valid files", t, func() {
		ctx := context.Background()
		dir := t.TempDir()
		modelPath := writeFile(dir, "m.json", linearModel())
		scalerPath := writeFile(dir, "s.json", `{"mean":`+repeat("0")+`,"scale":`+repeat("1")+`}`)
		c := artifact.NewCache(modelPath, scalerPath, artifact.WithLogger(logger.Named("test")))

		Convey("When the first caller's context is already cancelled", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			b := c.Get(cctx)

			Convey("Then the artifacts should still be loaded", func() {
				So(b.Loaded(), ShouldBeTrue)
				So(c.Err(), ShouldBeNil)
				So(c.Get(ctx).Classifier, ShouldEqual, b.Classifier)
			})
		})

		Convey("When the files disappear after the first load", func() {
			first := c.Get(ctx)
			So(os.Remove(modelPath), ShouldBeNil)
			second := c.Get(ctx)

			Convey("Then the cached bundle should still be served", func() {
				So(first.Loaded(), ShouldBeTrue)
				So(second.Loaded(), ShouldBeTrue)
				So(second.Classifier, ShouldEqual, first.Classifier)
				So(c.Err(), ShouldBeNil)
			})
		})
	})
}
