package fingerprint

import (
	"fmt"
	"runtime"
	"time"

	"github.com/pbnjay/memory"
	"github.com/sourcegraph/conc/panics"
)

// Probe acquires one signal. A probe that fails or panics contributes nothing.
type Probe struct {
	Name    string
	Acquire func() (Fingerprint, error)
}

// Collect runs every probe independently and merges whatever succeeded.
// Earlier probes win when two report the same signal. The returned errors
// describe the probes that failed; they never abort collection.
func Collect(probes ...Probe) (Fingerprint, []error) {
	var (
		out  Fingerprint
		errs []error
	)
	for _, p := range probes {
		if p.Acquire == nil {
			continue
		}
		var (
			got Fingerprint
			err error
			pc  panics.Catcher
		)
		pc.Try(func() { got, err = p.Acquire() })
		if rec := pc.Recovered(); rec != nil {
			errs = append(errs, fmt.Errorf("probe %s panicked: %w", p.Name, rec.AsError()))
			continue
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("probe %s: %w", p.Name, err))
			continue
		}
		out.merge(got)
	}
	return out, errs
}

// RuntimeProbes returns the probes a Go process can answer about itself.
func RuntimeProbes(userAgent, visitorID string) []Probe {
	return []Probe{
		{Name: "visitor", Acquire: func() (Fingerprint, error) {
			if visitorID == "" {
				return Fingerprint{}, fmt.Errorf("no visitor id")
			}
			return Fingerprint{VisitorID: &visitorID}, nil
		}},
		{Name: "user_agent", Acquire: func() (Fingerprint, error) {
			if userAgent == "" {
				return Fingerprint{}, fmt.Errorf("no user agent")
			}
			return Fingerprint{UserAgent: &userAgent}, nil
		}},
		{Name: "concurrency", Acquire: func() (Fingerprint, error) {
			n := runtime.NumCPU()
			return Fingerprint{HardwareConcurrency: &n}, nil
		}},
		{Name: "memory", Acquire: func() (Fingerprint, error) {
			total := memory.TotalMemory()
			if total == 0 {
				return Fingerprint{}, fmt.Errorf("total memory unavailable")
			}
			gb := float64(total) / (1 << 30)
			gb = float64(int(gb*10+0.5)) / 10
			return Fingerprint{DeviceMemory: &gb}, nil
		}},
		{Name: "timezone", Acquire: func() (Fingerprint, error) {
			name, _ := time.Now().Zone()
			if loc := time.Local.String(); loc != "" && loc != "Local" {
				name = loc
			}
			return Fingerprint{Timezone: &name}, nil
		}},
		{Name: "platform", Acquire: func() (Fingerprint, error) {
			platform := runtime.GOOS + "/" + runtime.GOARCH
			mobile := runtime.GOOS == "android" || runtime.GOOS == "ios"
			return Fingerprint{Platform: &platform, Mobile: &mobile}, nil
		}},
	}
}
