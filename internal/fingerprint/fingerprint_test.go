package fingerprint

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParse_NestedShape(t *testing.T) {
	t.Parallel()

	body := []byte(`{
		"u": "visitor-abc",
		"screen": {"width": 1920, "height": 1080, "availWidth": 1920, "availHeight": 1040},
		"deviceMemory": 8,
		"hardwareConcurrency": 12,
		"timezone": "Europe/Berlin",
		"uaData": {
			"brands": [{"brand": "Chromium", "version": "120"}, {"brand": "Google Chrome"}],
			"mobile": false,
			"platform": "Windows",
			"model": "",
			"ua": "Mozilla/5.0"
		}
	}`)

	fp := Parse(body)

	require.Equal(t, 1920, *fp.ScreenWidth)
	require.Equal(t, 1080, *fp.ScreenHeight)
	require.Equal(t, 1040, *fp.AvailHeight)
	require.InDelta(t, 8.0, *fp.DeviceMemory, 0.001)
	require.Equal(t, 12, *fp.HardwareConcurrency)
	require.Equal(t, "Europe/Berlin", *fp.Timezone)
	require.Equal(t, "Windows", *fp.Platform)
	require.Nil(t, fp.Model)
	require.False(t, *fp.Mobile)
	require.Equal(t, []string{"Chromium", "Google Chrome"}, fp.Brands)
	require.Equal(t, "Mozilla/5.0", *fp.UserAgent)
	require.Equal(t, "visitor-abc", *fp.VisitorID)
}

func TestParse_FlatShape(t *testing.T) {
	t.Parallel()

	body := []byte(`{
		"Screen": "width:390,height:844",
		"Memory": 4,
		"CPU Cores": 6,
		"Type": "Mobile",
		"OS": "iPhone",
		"Browser": "Safari",
		"Connection": "4g",
		"Visitor Cookie": {"id": "visitor-xyz", "lastVisitUtc": "2024-01-01T00:00:00Z"}
	}`)

	fp := Parse(body)

	require.Equal(t, 390, *fp.ScreenWidth)
	require.Equal(t, 844, *fp.ScreenHeight)
	require.Equal(t, 6, *fp.HardwareConcurrency)
	require.True(t, *fp.Mobile)
	require.Equal(t, "iPhone", *fp.Platform)
	require.Equal(t, []string{"Safari"}, fp.Brands)
	require.Equal(t, "4g", *fp.Connection)
	require.Equal(t, "visitor-xyz", *fp.VisitorID)
}

func TestParse_MalformedSignalIsIsolated(t *testing.T) {
	t.Parallel()

	body := []byte(`{"screen": "not-an-object", "deviceMemory": "lots", "timezone": "UTC", "hardwareConcurrency": null}`)

	fp := Parse(body)

	require.Nil(t, fp.ScreenWidth)
	require.Nil(t, fp.DeviceMemory)
	require.Nil(t, fp.HardwareConcurrency)
	require.NotNil(t, fp.Timezone)
	require.Equal(t, "UTC", *fp.Timezone)
}

func TestParse_InvalidJSONIsEmpty(t *testing.T) {
	t.Parallel()

	require.Empty(t, Parse([]byte("{oops")).Fields())
	require.Empty(t, Parse(nil).Fields())
	require.Empty(t, Parse([]byte(`["array"]`)).Fields())
}

func TestFields_OrderAndSkipping(t *testing.T) {
	t.Parallel()

	w, h := 1280, 720
	tz := "Asia/Tehran"
	id := "visitor-1"
	fp := Fingerprint{ScreenWidth: &w, ScreenHeight: &h, Timezone: &tz, VisitorID: &id}

	require.Equal(t, []Field{
		{Label: "Screen", Value: "1280x720"},
		{Label: "Timezone", Value: "Asia/Tehran"},
		{Label: "Visitor ID", Value: "visitor-1"},
	}, fp.Fields())
}

func TestPayload_ParsesBack(t *testing.T) {
	t.Parallel()

	w, h := 800, 600
	cores := 4
	platform := "linux/amd64"
	mobile := false
	id := "visitor-9"
	in := Fingerprint{
		ScreenWidth:         &w,
		ScreenHeight:        &h,
		HardwareConcurrency: &cores,
		Platform:            &platform,
		Mobile:              &mobile,
		Brands:              []string{"Go"},
		VisitorID:           &id,
	}

	payload := in.Payload()
	require.Equal(t, "visitor-9", payload["u"])
	require.Contains(t, payload, "uaData")
	require.Contains(t, payload, "screen")
}

func TestCollect_GuardsEachProbe(t *testing.T) {
	t.Parallel()

	tz := "UTC"
	cores := 2
	other := "ignored"
	fp, errs := Collect(
		Probe{Name: "broken", Acquire: func() (Fingerprint, error) {
			return Fingerprint{}, errors.New("client hints unsupported")
		}},
		Probe{Name: "panics", Acquire: func() (Fingerprint, error) {
			panic("navigator is undefined")
		}},
		Probe{Name: "timezone", Acquire: func() (Fingerprint, error) {
			return Fingerprint{Timezone: &tz}, nil
		}},
		Probe{Name: "cores", Acquire: func() (Fingerprint, error) {
			return Fingerprint{HardwareConcurrency: &cores}, nil
		}},
		Probe{Name: "late-timezone", Acquire: func() (Fingerprint, error) {
			return Fingerprint{Timezone: &other}, nil
		}},
		Probe{Name: "nil"},
	)

	require.Len(t, errs, 2)
	require.Contains(t, errs[0].Error(), "broken")
	require.Contains(t, errs[1].Error(), "panicked")
	require.Equal(t, "UTC", *fp.Timezone)
	require.Equal(t, 2, *fp.HardwareConcurrency)
}

func TestRuntimeProbes(t *testing.T) {
	t.Parallel()

	fp, _ := Collect(RuntimeProbes("portfolio-edge/1.0", "cli-visitor")...)

	require.Equal(t, "cli-visitor", *fp.VisitorID)
	require.Equal(t, "portfolio-edge/1.0", *fp.UserAgent)
	require.NotNil(t, fp.HardwareConcurrency)
	require.Positive(t, *fp.HardwareConcurrency)
	require.NotNil(t, fp.Platform)
	require.NotNil(t, fp.Timezone)
}

func TestRuntimeProbes_MissingIdentity(t *testing.T) {
	t.Parallel()

	fp, errs := Collect(RuntimeProbes("", "")...)

	require.Nil(t, fp.VisitorID)
	require.Nil(t, fp.UserAgent)
	require.GreaterOrEqual(t, len(errs), 2)
}
