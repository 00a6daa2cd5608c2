package propagation

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/star/orbstate/internal/sgp4"
	"github.com/star/orbstate/internal/tle"
)

const (
	issLine1 = "1 25544U 98067A   25045.18032407  .00016717  00000+0  30099-3 0  9996"
	issLine2 = "2 25544  51.6412 193.5765 0003457 126.2851 233.8519 15.49874301495057"

	vanguardLine1 = "1 00005U 58002B   00179.78495062  .00000023  00000-0  28098-4 0  4753"
	vanguardLine2 = "2 00005  34.2682 348.7242 1859667 331.7664  19.3264 10.82419157413667"

	molniyaLine1 = "1 08195U 75081A   06176.33215444  .00000099  00000-0  11873-3 0   813"
	molniyaLine2 = "2 08195  64.1586 279.0717 6877146 264.7651  20.2257  2.00491383225656"

	polarDeepLine1 = "1 99999U 24001A   24100.50000000  .00000000  00000-0  00000-0 0  9994"
	polarDeepLine2 = "2 99999  90.0000 100.0000 0100000   0.0000   0.0000  0.20000000    00"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func mustRecord(t testing.TB, l1, l2 string) tle.Record {
	t.Helper()
	rec, err := tle.Parse("", l1, l2)
	require.NoError(t, err)
	return rec
}

func norm(v [3]float64) float64 {
	return math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
}

func TestPropagateISSAtEpoch(t *testing.T) {
	rec := mustRecord(t, issLine1, issLine2)

	sv, err := Propagate(rec, rec.Epoch, DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, StatusOk, sv.Status)
	assert.Equal(t, 25544, sv.CatalogNumber)
	assert.True(t, sv.Epoch.Equal(rec.Epoch))
	assert.InDelta(t, 0.0, sv.MinutesSinceEpoch, 1e-9)
	assert.False(t, sv.OutsideValidityWindow)

	alt := norm(sv.Position) - sgp4.WGS72.RadiusKm
	assert.Greater(t, alt, 400.0)
	assert.Less(t, alt, 430.0)

	require.NotNil(t, sv.Geodetic)
	assert.LessOrEqual(t, math.Abs(sv.Geodetic.LatDeg), 51.7)
	assert.Greater(t, sv.Geodetic.AltKm, 390.0)
	assert.Less(t, sv.Geodetic.AltKm, 440.0)
}

func TestPropagateReferenceOffsets(t *testing.T) {
	rec := mustRecord(t, vanguardLine1, vanguardLine2)
	p, err := NewSGP4Propagator(rec, DefaultConfig())
	require.NoError(t, err)

	sv, err := p.Propagate(rec.Epoch.Add(360 * time.Minute))
	require.NoError(t, err)
	assert.InDelta(t, 360.0, sv.MinutesSinceEpoch, 1e-6)
	want := [3]float64{-7154.03120202, -3783.17682504, -3536.19412294}
	for i := range want {
		assert.InDelta(t, want[i], sv.Position[i], 1e-3)
	}

	back, err := p.Propagate(rec.Epoch.Add(-1440 * time.Minute))
	require.NoError(t, err)
	assert.InDelta(t, -1440.0, back.MinutesSinceEpoch, 1e-6)
	assert.Equal(t, StatusOk, back.Status)
}

func TestPropagateJulianMatchesTime(t *testing.T) {
	rec := mustRecord(t, molniyaLine1, molniyaLine2)
	p, err := NewSGP4Propagator(rec, DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, sgp4.DeepSpace, p.Model().Regime())

	jd := p.Model().Epoch().AddMinutes(720)
	a, err := p.PropagateJulian(jd)
	require.NoError(t, err)
	b, err := p.Propagate(rec.Epoch.Add(720 * time.Minute))
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		assert.InDelta(t, b.Position[i], a.Position[i], 1e-6)
	}
	assert.WithinDuration(t, b.Epoch, a.Epoch, time.Microsecond)
}

func TestPropagateDecayed(t *testing.T) {
	rec := mustRecord(t, issLine1, issLine2)
	rec.BStar = 0.5

	target := rec.Epoch.Add(30 * 24 * time.Hour)
	sv, err := Propagate(rec, target, DefaultConfig())
	require.Error(t, err)
	assert.Equal(t, StatusDecayed, sv.Status)
	assert.NotEmpty(t, sv.Error)
	assert.Equal(t, [3]float64{}, sv.Position)
	assert.Nil(t, sv.Geodetic)

	assert.ErrorIs(t, err, ErrDecayed)
	assert.False(t, errors.Is(err, ErrNumericDegenerate))
	var perr *PropagationError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, 25544, perr.CatalogNumber)
	assert.True(t, perr.Epoch.Equal(target))
	var serr *sgp4.Error
	assert.True(t, errors.As(err, &serr))
}

func TestPropagateSubSurfacePerigee(t *testing.T) {
	rec := mustRecord(t, issLine1, issLine2)
	rec.Eccentricity = 0.1

	sv, err := Propagate(rec, rec.Epoch, DefaultConfig())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDecayed)
	assert.Equal(t, StatusDecayed, sv.Status)
	assert.Equal(t, [3]float64{}, sv.Position)
	assert.Nil(t, sv.Geodetic)
	assert.Contains(t, sv.Error, "sub-orbital")

	var serr *sgp4.Error
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, sgp4.CodeSubOrbitalEpoch, serr.Code)
}

func TestPropagateNumericDegenerate(t *testing.T) {
	rec := mustRecord(t, polarDeepLine1, polarDeepLine2)
	p, err := NewSGP4Propagator(rec, DefaultConfig())
	require.NoError(t, err)
	require.Equal(t, sgp4.DeepSpace, p.Model().Regime())

	target := rec.Epoch.Add(time.Duration(998.5 * 24 * float64(time.Hour)))
	sv, err := p.Propagate(target)
	require.Error(t, err)
	assert.Equal(t, StatusNumericDegenerate, sv.Status)
	assert.True(t, errors.Is(err, ErrNumericDegenerate))
	assert.False(t, errors.Is(err, ErrDecayed))
	assert.False(t, sv.OutsideValidityWindow)
	assert.Equal(t, [3]float64{}, sv.Position)
	assert.NotEmpty(t, sv.Error)

	var serr *sgp4.Error
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, sgp4.CodePerturbedEccentricity, serr.Code)
}

func TestPropagateDecayFloor(t *testing.T) {
	rec := mustRecord(t, issLine1, issLine2)
	cfg := DefaultConfig()
	cfg.DecayAltitudeKm = 500

	sv, err := Propagate(rec, rec.Epoch, cfg)
	assert.ErrorIs(t, err, ErrDecayed)
	assert.Equal(t, StatusDecayed, sv.Status)
	assert.Contains(t, sv.Error, "decay floor")
}

func TestPropagateOutsideValidityWindow(t *testing.T) {
	rec := mustRecord(t, vanguardLine1, vanguardLine2)
	cfg := DefaultConfig()
	cfg.ValidityWindow = 7 * 24 * time.Hour

	sv, err := Propagate(rec, rec.Epoch.Add(10*24*time.Hour), cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrOutOfValidityWindow)
	assert.Equal(t, StatusOk, sv.Status)
	assert.True(t, sv.OutsideValidityWindow)
	assert.NotZero(t, norm(sv.Position))
	assert.Empty(t, sv.Error)

	cfg.ValidityWindow = 0
	sv, err = Propagate(rec, rec.Epoch.Add(10*24*time.Hour), cfg)
	require.NoError(t, err)
	assert.False(t, sv.OutsideValidityWindow)
}

func TestNewSGP4PropagatorInvalidElements(t *testing.T) {
	rec := mustRecord(t, issLine1, issLine2)
	rec.MeanMotion = 0

	_, err := NewSGP4Propagator(rec, DefaultConfig())
	assert.ErrorIs(t, err, ErrInvalidElements)

	sv, err := Propagate(rec, rec.Epoch, DefaultConfig())
	assert.ErrorIs(t, err, ErrInvalidElements)
	assert.Equal(t, StatusNumericDegenerate, sv.Status)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		code sgp4.Code
		want Kind
	}{
		{sgp4.CodeMeanEccentricity, KindDecayed},
		{sgp4.CodeMeanMotion, KindDecayed},
		{sgp4.CodeSemiLatusRectum, KindDecayed},
		{sgp4.CodeSubOrbitalEpoch, KindDecayed},
		{sgp4.CodeSubOrbital, KindDecayed},
		{sgp4.CodePerturbedEccentricity, KindNumericDegenerate},
		{sgp4.CodeNotConverged, KindNumericDegenerate},
		{sgp4.CodeNonFinite, KindNumericDegenerate},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, classify(&sgp4.Error{Code: tt.code}), "code %d", tt.code)
	}
}

func TestStatusText(t *testing.T) {
	for _, s := range []Status{StatusOk, StatusDecayed, StatusNumericDegenerate} {
		b, err := s.MarshalText()
		require.NoError(t, err)
		var got Status
		require.NoError(t, got.UnmarshalText(b))
		assert.Equal(t, s, got)
	}
	var s Status
	assert.Error(t, s.UnmarshalText([]byte("lost")))
	assert.Equal(t, "status(9)", Status(9).String())
}

func TestWorkerPoolPreservesOrder(t *testing.T) {
	recs := []tle.Record{
		mustRecord(t, issLine1, issLine2),
		mustRecord(t, vanguardLine1, vanguardLine2),
		mustRecord(t, molniyaLine1, molniyaLine2),
	}
	var jobs []Job
	for i := 0; i < 60; i++ {
		rec := recs[i%len(recs)]
		p, err := NewSGP4Propagator(rec, DefaultConfig())
		require.NoError(t, err)
		jobs = append(jobs, Job{
			Index:      1000 + i,
			Propagator: p,
			Target:     rec.Epoch.Add(time.Duration(i) * time.Minute),
		})
	}

	pool := NewWorkerPool(4, testLogger())
	results, err := pool.Run(context.Background(), jobs)
	require.NoError(t, err)
	require.Len(t, results, len(jobs))

	for i, res := range results {
		assert.Equal(t, jobs[i].Index, res.Index)
		assert.Equal(t, recs[i%len(recs)].CatalogNumber, res.State.CatalogNumber)
		assert.InDelta(t, float64(i), res.State.MinutesSinceEpoch, 1e-6)

		want, werr := jobs[i].Propagator.Propagate(jobs[i].Target)
		assert.Equal(t, werr == nil, res.Err == nil)
		assert.Equal(t, want.Position, res.State.Position)
	}
}

func TestWorkerPoolCancellation(t *testing.T) {
	rec := mustRecord(t, issLine1, issLine2)
	p, err := NewSGP4Propagator(rec, DefaultConfig())
	require.NoError(t, err)

	jobs := make([]Job, 500)
	for i := range jobs {
		jobs[i] = Job{Index: i, Propagator: p, Target: rec.Epoch}
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := NewWorkerPool(2, testLogger()).Run(ctx, jobs)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, results)
}

func TestWorkerPoolEmpty(t *testing.T) {
	pool := NewWorkerPool(0, testLogger())
	assert.Equal(t, 1, pool.Workers())
	results, err := pool.Run(context.Background(), nil)
	assert.NoError(t, err)
	assert.Empty(t, results)
}

func BenchmarkWorkerPool1000(b *testing.B) {
	rec := mustRecord(b, issLine1, issLine2)
	p, err := NewSGP4Propagator(rec, DefaultConfig())
	require.NoError(b, err)

	jobs := make([]Job, 1000)
	for i := range jobs {
		jobs[i] = Job{Index: i, Propagator: p, Target: rec.Epoch.Add(time.Duration(i) * time.Second)}
	}
	pool := NewWorkerPool(4, testLogger())
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := pool.Run(ctx, jobs); err != nil {
			b.Fatal(err)
		}
	}
}
