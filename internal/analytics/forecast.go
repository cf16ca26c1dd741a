package analytics

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/optimize"

	"github.com/couchcryptid/covid-analytics-service/internal/domain"
)

// Forecast defaults. The model is SARIMA(1,1,1)x(0,1,1,7).
const (
	DefaultHorizon = 14

	season = 7
	// Observations lost to regular and seasonal differencing.
	diffLoss = season + 1
	// MinObservations leaves 14 differenced points to fit three parameters.
	MinObservations = diffLoss + 14

	z95 = 1.959963984540054
)

// ErrFitFailed reports that the model could not be estimated from the data.
var ErrFitFailed = errors.New("forecast fit failed")

// SarimaFit holds the estimated coefficients of the model
//
//	(1 - phi B)(1 - B)(1 - B^7) y_t = (1 + theta B)(1 + Theta B^7) e_t
type SarimaFit struct {
	Phi         float64
	Theta       float64
	SeasonTheta float64
	Sigma2      float64
}

// DailySeries sorts rows by date, sums duplicate days and fills missing
// days with zero. It returns the counts and the first date.
func DailySeries(rows []domain.TimeSeriesRow) ([]float64, domain.Date) {
	if len(rows) == 0 {
		return nil, domain.Date{}
	}
	sorted := append([]domain.TimeSeriesRow(nil), rows...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })

	byDay := make(map[string]float64, len(sorted))
	for _, r := range sorted {
		byDay[r.Date.String()] += float64(r.Cases)
	}

	first, last := sorted[0].Date, sorted[len(sorted)-1].Date
	var y []float64
	for d := first; !last.Before(d); d = d.AddDays(1) {
		y = append(y, byDay[d.String()])
	}
	return y, first
}

// Forecast fits the seasonal model to the daily case series and predicts
// horizon days past its last date with a 95% interval.
func Forecast(rows []domain.TimeSeriesRow, horizon int) ([]domain.ForecastRow, error) {
	if horizon < 1 {
		return nil, fmt.Errorf("%w: horizon must be at least 1, got %d", ErrInvalidInput, horizon)
	}
	y, first := DailySeries(rows)
	if len(y) < MinObservations {
		return nil, fmt.Errorf("%w: need at least %d daily observations, got %d", ErrInvalidInput, MinObservations, len(y))
	}

	fit, err := FitSarima(y)
	if err != nil {
		return nil, err
	}
	mean, stderr := fit.Predict(y, horizon)

	last := first.AddDays(len(y) - 1)
	out := make([]domain.ForecastRow, horizon)
	for h := range horizon {
		f, s := mean[h], stderr[h]
		if math.IsNaN(f) || math.IsInf(f, 0) || math.IsNaN(s) || math.IsInf(s, 0) {
			return nil, fmt.Errorf("%w: non-finite prediction at step %d", ErrFitFailed, h+1)
		}
		out[h] = domain.ForecastRow{
			Date:     last.AddDays(h + 1),
			Forecast: f,
			Lower:    f - z95*s,
			Upper:    f + z95*s,
		}
	}
	return out, nil
}

// FitSarima estimates the coefficients by conditional sum of squares.
// Coefficients are searched through tanh so each stays inside (-1, 1).
func FitSarima(y []float64) (SarimaFit, error) {
	if len(y) < MinObservations {
		return SarimaFit{}, fmt.Errorf("%w: need at least %d daily observations, got %d", ErrInvalidInput, MinObservations, len(y))
	}
	w := difference(y)

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			ss, _ := conditionalSS(w, math.Tanh(x[0]), math.Tanh(x[1]), math.Tanh(x[2]))
			if math.IsNaN(ss) {
				return math.Inf(1)
			}
			return ss
		},
	}
	settings := &optimize.Settings{FuncEvaluations: 4000}
	res, err := optimize.Minimize(problem, []float64{0, 0, 0}, settings, &optimize.NelderMead{})
	if err != nil {
		return SarimaFit{}, fmt.Errorf("%w: %w", ErrFitFailed, err)
	}

	fit := SarimaFit{
		Phi:         math.Tanh(res.X[0]),
		Theta:       math.Tanh(res.X[1]),
		SeasonTheta: math.Tanh(res.X[2]),
	}
	ss, n := conditionalSS(w, fit.Phi, fit.Theta, fit.SeasonTheta)
	fit.Sigma2 = ss / float64(n)
	if math.IsNaN(fit.Sigma2) || math.IsInf(fit.Sigma2, 0) {
		return SarimaFit{}, fmt.Errorf("%w: non-finite residual variance", ErrFitFailed)
	}
	return fit, nil
}

// Predict returns point forecasts and their standard errors for horizon
// steps past the end of y.
func (f SarimaFit) Predict(y []float64, horizon int) (mean, stderr []float64) {
	w := difference(y)
	e := f.residuals(w)

	n, m := len(y), len(w)
	yExt := append(append(make([]float64, 0, n+horizon), y...), make([]float64, horizon)...)
	wExt := append(append(make([]float64, 0, m+horizon), w...), make([]float64, horizon)...)
	eExt := append(append(make([]float64, 0, m+horizon), e...), make([]float64, horizon)...)

	mean = make([]float64, horizon)
	for h := range horizon {
		t := m + h
		wExt[t] = f.Phi*wExt[t-1] +
			f.Theta*at(eExt, t-1) +
			f.SeasonTheta*at(eExt, t-season) +
			f.Theta*f.SeasonTheta*at(eExt, t-season-1)

		i := n + h
		yExt[i] = wExt[t] + yExt[i-1] + yExt[i-season] - yExt[i-season-1]
		mean[h] = yExt[i]
	}

	psi := f.psiWeights(horizon)
	stderr = make([]float64, horizon)
	var acc float64
	for h := range horizon {
		acc += psi[h] * psi[h]
		stderr[h] = math.Sqrt(f.Sigma2 * acc)
	}
	return mean, stderr
}

// psiWeights expands the MA(infinity) form of the full integrated model.
func (f SarimaFit) psiWeights(n int) []float64 {
	// AR side: (1 - phi B)(1 - B)(1 - B^7) = sum p_i B^i.
	ar := polyMul(polyMul([]float64{1, -f.Phi}, []float64{1, -1}), seasonalPoly(-1))
	// MA side: (1 + theta B)(1 + Theta B^7).
	ma := polyMul([]float64{1, f.Theta}, seasonalPoly(f.SeasonTheta))

	psi := make([]float64, n)
	for j := range n {
		v := at(ma, j)
		if j == 0 {
			v = 1
		}
		for i := 1; i <= j && i < len(ar); i++ {
			v -= ar[i] * psi[j-i]
		}
		psi[j] = v
	}
	return psi
}

func (f SarimaFit) residuals(w []float64) []float64 {
	e := make([]float64, len(w))
	for t := 1; t < len(w); t++ {
		e[t] = w[t] - f.Phi*w[t-1] -
			f.Theta*e[t-1] -
			f.SeasonTheta*at(e, t-season) -
			f.Theta*f.SeasonTheta*at(e, t-season-1)
	}
	return e
}

// conditionalSS returns the residual sum of squares and the number of terms.
func conditionalSS(w []float64, phi, theta, stheta float64) (float64, int) {
	f := SarimaFit{Phi: phi, Theta: theta, SeasonTheta: stheta}
	var ss float64
	for _, r := range f.residuals(w)[1:] {
		ss += r * r
	}
	return ss, len(w) - 1
}

// difference applies (1 - B)(1 - B^7).
func difference(y []float64) []float64 {
	if len(y) <= diffLoss {
		return nil
	}
	w := make([]float64, len(y)-diffLoss)
	for t := range w {
		i := t + diffLoss
		w[t] = y[i] - y[i-1] - y[i-season] + y[i-season-1]
	}
	return w
}

func seasonalPoly(c float64) []float64 {
	p := make([]float64, season+1)
	p[0], p[season] = 1, c
	return p
}

func polyMul(a, b []float64) []float64 {
	out := make([]float64, len(a)+len(b)-1)
	for i, x := range a {
		for j, y := range b {
			out[i+j] += x * y
		}
	}
	return out
}

func at(s []float64, i int) float64 {
	if i < 0 || i >= len(s) {
		return 0
	}
	return s[i]
}
