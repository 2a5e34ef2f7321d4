// Package fingerprint models the best-effort client signals that accompany a
// visitor notification. Every signal is optional: a missing or malformed
// signal leaves only its own field nil.
package fingerprint

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Fingerprint is the closed set of signals a client may report.
type Fingerprint struct {
	ScreenWidth         *int     `json:"screen_width,omitempty"`
	ScreenHeight        *int     `json:"screen_height,omitempty"`
	AvailWidth          *int     `json:"avail_width,omitempty"`
	AvailHeight         *int     `json:"avail_height,omitempty"`
	DeviceMemory        *float64 `json:"device_memory,omitempty"`
	HardwareConcurrency *int     `json:"hardware_concurrency,omitempty"`
	Timezone            *string  `json:"timezone,omitempty"`
	UserAgent           *string  `json:"user_agent,omitempty"`
	Platform            *string  `json:"platform,omitempty"`
	Model               *string  `json:"model,omitempty"`
	Mobile              *bool    `json:"mobile,omitempty"`
	Brands              []string `json:"brands,omitempty"`
	Connection          *string  `json:"connection,omitempty"`
	VisitorID           *string  `json:"visitor_id,omitempty"`
}

// Field is one human-readable signal.
type Field struct {
	Label string
	Value string
}

type bag map[string]json.RawMessage

// Parse reads the JSON body posted by the browser collector. Both payload
// shapes in the wild are understood: the nested one ({screen:{...},
// uaData:{...}}) and the flat one ({"Screen":"width:..","CPU Cores":..}).
// Invalid JSON yields an empty Fingerprint.
func Parse(body []byte) Fingerprint {
	var fp Fingerprint
	if len(bytes.TrimSpace(body)) == 0 {
		return fp
	}
	var top bag
	if err := json.Unmarshal(body, &top); err != nil {
		return fp
	}

	if screen, ok := top.object("screen"); ok {
		fp.ScreenWidth = screen.integer("width")
		fp.ScreenHeight = screen.integer("height")
		fp.AvailWidth = screen.integer("availWidth")
		fp.AvailHeight = screen.integer("availHeight")
	}
	if fp.ScreenWidth == nil && fp.ScreenHeight == nil {
		if s := top.str("Screen"); s != nil {
			fp.ScreenWidth, fp.ScreenHeight = parseScreen(*s)
		}
	}

	fp.DeviceMemory = firstFloat(top.num("deviceMemory"), top.num("Memory"))
	fp.HardwareConcurrency = firstInt(top.integer("hardwareConcurrency"), top.integer("CPU Cores"))
	fp.Timezone = top.str("timezone")
	fp.Connection = firstString(top.str("connection"), top.str("Connection"))

	if ua, ok := top.object("uaData"); ok {
		fp.UserAgent = ua.str("ua")
		fp.Platform = ua.str("platform")
		fp.Model = ua.str("model")
		fp.Mobile = ua.flag("mobile")
		fp.Brands = ua.brands("brands")
	}
	fp.UserAgent = firstString(fp.UserAgent, top.str("userAgent"))
	fp.Platform = firstString(fp.Platform, top.str("OS"))
	fp.Model = firstString(fp.Model, top.str("Model"), top.str("Device"))
	if fp.Mobile == nil {
		if t := top.str("Type"); t != nil {
			mobile := strings.EqualFold(*t, "mobile")
			fp.Mobile = &mobile
		}
	}
	if len(fp.Brands) == 0 {
		if b := top.str("Browser"); b != nil {
			fp.Brands = []string{*b}
		}
	}

	fp.VisitorID = firstString(top.str("u"), top.str("visitorId"))
	if fp.VisitorID == nil {
		if cookie, ok := top.object("Visitor Cookie"); ok {
			fp.VisitorID = cookie.str("id")
		} else {
			fp.VisitorID = top.str("Visitor Cookie")
		}
	}
	return fp
}

// Fields lists the reported signals in a fixed order, skipping absent ones.
func (f Fingerprint) Fields() []Field {
	var out []Field
	add := func(label, value string) {
		out = append(out, Field{Label: label, Value: value})
	}
	if f.ScreenWidth != nil && f.ScreenHeight != nil {
		add("Screen", fmt.Sprintf("%dx%d", *f.ScreenWidth, *f.ScreenHeight))
	}
	if f.AvailWidth != nil && f.AvailHeight != nil {
		add("Available Screen", fmt.Sprintf("%dx%d", *f.AvailWidth, *f.AvailHeight))
	}
	if f.DeviceMemory != nil {
		add("Memory", strconv.FormatFloat(*f.DeviceMemory, 'f', -1, 64)+" GB")
	}
	if f.HardwareConcurrency != nil {
		add("CPU Cores", strconv.Itoa(*f.HardwareConcurrency))
	}
	if f.Timezone != nil {
		add("Timezone", *f.Timezone)
	}
	if f.Platform != nil {
		add("Platform", *f.Platform)
	}
	if f.Model != nil {
		add("Model", *f.Model)
	}
	if f.Mobile != nil {
		if *f.Mobile {
			add("Type", "Mobile")
		} else {
			add("Type", "Desktop")
		}
	}
	if len(f.Brands) > 0 {
		add("Brands", strings.Join(f.Brands, ", "))
	}
	if f.Connection != nil {
		add("Connection", *f.Connection)
	}
	if f.VisitorID != nil {
		add("Visitor ID", *f.VisitorID)
	}
	return out
}

// Payload renders f in the nested shape Parse understands.
func (f Fingerprint) Payload() map[string]any {
	out := map[string]any{}
	screen := map[string]any{}
	setInt(screen, "width", f.ScreenWidth)
	setInt(screen, "height", f.ScreenHeight)
	setInt(screen, "availWidth", f.AvailWidth)
	setInt(screen, "availHeight", f.AvailHeight)
	if len(screen) > 0 {
		out["screen"] = screen
	}
	if f.DeviceMemory != nil {
		out["deviceMemory"] = *f.DeviceMemory
	}
	setInt(out, "hardwareConcurrency", f.HardwareConcurrency)
	setString(out, "timezone", f.Timezone)
	setString(out, "connection", f.Connection)
	setString(out, "u", f.VisitorID)

	ua := map[string]any{}
	setString(ua, "ua", f.UserAgent)
	setString(ua, "platform", f.Platform)
	setString(ua, "model", f.Model)
	if f.Mobile != nil {
		ua["mobile"] = *f.Mobile
	}
	if len(f.Brands) > 0 {
		brands := make([]map[string]string, 0, len(f.Brands))
		for _, b := range f.Brands {
			brands = append(brands, map[string]string{"brand": b})
		}
		ua["brands"] = brands
	}
	if len(ua) > 0 {
		out["uaData"] = ua
	}
	return out
}

// merge fills f's nil signals from o.
func (f *Fingerprint) merge(o Fingerprint) {
	f.ScreenWidth = firstInt(f.ScreenWidth, o.ScreenWidth)
	f.ScreenHeight = firstInt(f.ScreenHeight, o.ScreenHeight)
	f.AvailWidth = firstInt(f.AvailWidth, o.AvailWidth)
	f.AvailHeight = firstInt(f.AvailHeight, o.AvailHeight)
	f.DeviceMemory = firstFloat(f.DeviceMemory, o.DeviceMemory)
	f.HardwareConcurrency = firstInt(f.HardwareConcurrency, o.HardwareConcurrency)
	f.Timezone = firstString(f.Timezone, o.Timezone)
	f.UserAgent = firstString(f.UserAgent, o.UserAgent)
	f.Platform = firstString(f.Platform, o.Platform)
	f.Model = firstString(f.Model, o.Model)
	if f.Mobile == nil {
		f.Mobile = o.Mobile
	}
	if len(f.Brands) == 0 {
		f.Brands = o.Brands
	}
	f.Connection = firstString(f.Connection, o.Connection)
	f.VisitorID = firstString(f.VisitorID, o.VisitorID)
}

func (b bag) object(key string) (bag, bool) {
	raw, ok := b[key]
	if !ok {
		return nil, false
	}
	var out bag
	if err := json.Unmarshal(raw, &out); err != nil || out == nil {
		return nil, false
	}
	return out, true
}

func (b bag) str(key string) *string {
	var s string
	if err := json.Unmarshal(b[key], &s); err != nil || strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}

func (b bag) num(key string) *float64 {
	var v float64
	if err := json.Unmarshal(b[key], &v); err != nil || v <= 0 {
		return nil
	}
	return &v
}

func (b bag) integer(key string) *int {
	v := b.num(key)
	if v == nil {
		return nil
	}
	n := int(*v)
	return &n
}

func (b bag) flag(key string) *bool {
	var v bool
	if err := json.Unmarshal(b[key], &v); err != nil {
		return nil
	}
	return &v
}

// brands accepts [{"brand":"Chromium"}] as well as ["Chromium"].
func (b bag) brands(key string) []string {
	raw, ok := b[key]
	if !ok {
		return nil
	}
	var objs []struct {
		Brand string `json:"brand"`
	}
	if err := json.Unmarshal(raw, &objs); err == nil {
		var out []string
		for _, o := range objs {
			if o.Brand != "" {
				out = append(out, o.Brand)
			}
		}
		return out
	}
	var names []string
	if err := json.Unmarshal(raw, &names); err == nil {
		return names
	}
	return nil
}

// parseScreen reads "width:1920,height:1080".
func parseScreen(s string) (*int, *int) {
	var w, h int
	if _, err := fmt.Sscanf(s, "width:%d,height:%d", &w, &h); err != nil || w <= 0 || h <= 0 {
		return nil, nil
	}
	return &w, &h
}

func setInt(m map[string]any, key string, v *int) {
	if v != nil {
		m[key] = *v
	}
}

func setString(m map[string]any, key string, v *string) {
	if v != nil {
		m[key] = *v
	}
}

func firstString(vals ...*string) *string {
	for _, v := range vals {
		if v != nil {
			return v
		}
	}
	return nil
}

func firstInt(vals ...*int) *int {
	for _, v := range vals {
		if v != nil {
			return v
		}
	}
	return nil
}

func firstFloat(vals ...*float64) *float64 {
	for _, v := range vals {
		if v != nil {
			return v
		}
	}
	return nil
}
