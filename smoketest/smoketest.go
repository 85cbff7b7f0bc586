package smoketest

import (
	"context"
	"io"
	"math/rand/v2"
	"net/http"
	"slices"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/quadrant/quadtree"
	"github.com/segmentio/encoding/json"
)

const (
	ErrTypeBadRequest = "bad_request"
	ErrTypeCanceled   = "canceled"
)

// Request describes the scratch index built by a smoke test. Zero fields are
// replaced by the defaults.
type Request struct {
	Width      float64 `json:"width"`
	Height     float64 `json:"height"`
	MaxLevel   int     `json:"max_level"`
	MaxObjects int     `json:"max_objects"`
	Points     int     `json:"points"`
	Seed       uint64  `json:"seed"`
}

func (r Request) withDefaults() Request {
	if r.Width == 0 {
		r.Width = 1000
	}
	if r.Height == 0 {
		r.Height = 1000
	}
	if r.MaxLevel == 0 {
		r.MaxLevel = 8
	}
	if r.MaxObjects == 0 {
		r.MaxObjects = 4
	}
	if r.Points == 0 {
		r.Points = 1000
	}
	if r.Seed == 0 {
		r.Seed = uint64(time.Now().UnixNano())
	}
	return r
}

// Result reports the outcome of a smoke test.
type Result struct {
	Passed   bool   `json:"passed"`
	Inserted int    `json:"inserted"`
	Missing  int    `json:"missing"`
	Nodes    int    `json:"nodes"`
	Depth    int    `json:"depth"`
	Seed     uint64 `json:"seed"`
	Duration string `json:"duration"`
}

type Options struct {
	// The maximum number of points a request can insert.
	MaxPoints int

	// Called with every result, typically to log it.
	SendResult func(context.Context, Result) error
}

// Run inserts pseudo-random points into a fresh index and checks that
// querying each point returns it.
func Run(ctx context.Context, req Request) (Result, error) {
	req = req.withDefaults()
	if req.Points < 0 {
		return Result{}, errors.New("negative point count").
			WithType(ErrTypeBadRequest).
			WithTag("points", req.Points)
	}
	start := time.Now()

	tree, err := quadtree.New[int](quadtree.Rect{
		Width:  req.Width,
		Height: req.Height,
	}, req.MaxLevel, req.MaxObjects)
	if err != nil {
		return Result{}, err
	}

	rng := rand.New(rand.NewPCG(req.Seed, req.Seed>>1))
	points := make([][2]float64, req.Points)
	for i := range points {
		// Points on the outer edges are not reachable by queries.
		points[i] = [2]float64{
			openInterval(rng) * req.Width,
			openInterval(rng) * req.Height,
		}
		tree.Insert(i, points[i][0], points[i][1])
	}

	res := Result{
		Inserted: len(points),
		Seed:     req.Seed,
	}

	for i, p := range points {
		if i%1024 == 0 && ctx.Err() != nil {
			return Result{}, errors.New("smoke test canceled").
				WithType(ErrTypeCanceled).
				Wrap(ctx.Err())
		}

		if !slices.Contains(tree.Query(p[0], p[1]), i) {
			res.Missing++
		}
	}

	info := tree.DebugInfo()
	res.Passed = res.Missing == 0 && info.EntryCount == len(points)
	res.Nodes = info.NodeCount
	res.Depth = info.Depth
	res.Duration = time.Since(start).String()
	return res, nil
}

func openInterval(rng *rand.Rand) float64 {
	for {
		if f := rng.Float64(); f != 0 {
			return f
		}
	}
}

// HandleSmokeTest runs a smoke test described by the JSON request body and
// responds with its result.
func HandleSmokeTest(ctx context.Context, opts Options) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req Request

		b, err := io.ReadAll(r.Body)
		if err != nil {
			writeError(w, http.StatusInternalServerError, errors.New("reading body failed").Wrap(err))
			return
		}

		if len(b) != 0 {
			if err := json.Unmarshal(b, &req); err != nil {
				writeError(w, http.StatusBadRequest, errors.New("decoding body failed").
					WithType(ErrTypeBadRequest).
					Wrap(err))
				return
			}
		}

		req = req.withDefaults()
		if opts.MaxPoints > 0 && req.Points > opts.MaxPoints {
			writeError(w, http.StatusBadRequest, errors.New("too many points").
				WithType(ErrTypeBadRequest).
				WithTag("points", req.Points).
				WithTag("max_points", opts.MaxPoints))
			return
		}

		res, err := Run(r.Context(), req)
		if errors.IsType(err, quadtree.ErrTypeInvalidConfig) || errors.IsType(err, ErrTypeBadRequest) {
			writeError(w, http.StatusBadRequest, err)
			return
		} else if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}

		if opts.SendResult != nil {
			if err := opts.SendResult(ctx, res); err != nil {
				logs.Warn(errors.New("sending smoke test result failed").
					WithTag("seed", res.Seed).
					Wrap(err))
			}
		}

		writeJSON(w, http.StatusOK, res)
	}
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, err error) {
	if status >= http.StatusInternalServerError {
		logs.Warn(err)
	}

	writeJSON(w, status, errorResponse{
		Error:   errors.Type(err),
		Message: err.Error(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(b)
}
