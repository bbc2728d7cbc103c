package saleae

import (
	"errors"
	"net/http"

	"github.com/izzy84075/sigrok/datafeed"
	"github.com/izzy84075/sigrok/server"
)

// HTTPWrapper exposes one device of a driver over HTTP.  Captures started
// over HTTP record into an in-memory buffer that clients download from
// /capture after stopping (or after the sample limit ends the feed).
type HTTPWrapper struct {
	drv     *Driver
	index   int
	capture *datafeed.Buffer
	rt      server.RouteTable
}

// NewHTTPWrapper builds the route table for one device index.
func NewHTTPWrapper(drv *Driver, index int) *HTTPWrapper {
	h := &HTTPWrapper{drv: drv, index: index, capture: datafeed.NewBuffer()}
	h.rt = server.RouteTable{
		{Method: http.MethodGet, Path: "/"}:              h.Summary,
		{Method: http.MethodGet, Path: "/status"}:        h.Status,
		{Method: http.MethodPost, Path: "/open"}:         h.Open,
		{Method: http.MethodPost, Path: "/close"}:        h.Close,
		{Method: http.MethodGet, Path: "/samplerate"}:    h.GetSamplerate,
		{Method: http.MethodPost, Path: "/samplerate"}:   h.SetSamplerate,
		{Method: http.MethodGet, Path: "/samplerates"}:   h.Samplerates,
		{Method: http.MethodPost, Path: "/limit-samples"}: h.SetLimitSamples,
		{Method: http.MethodPost, Path: "/probes"}:        h.SetProbes,
		{Method: http.MethodPost, Path: "/acquire/start"}: h.StartAcquisition,
		{Method: http.MethodPost, Path: "/acquire/stop"}:  h.StopAcquisition,
		{Method: http.MethodGet, Path: "/capture"}:        h.Capture,
	}
	return h
}

// RT returns the wrapper's route table for binding.
func (h *HTTPWrapper) RT() server.RouteTable { return h.rt }

func (h *HTTPWrapper) httpError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrArg), errors.Is(err, ErrSamplerate):
		code = http.StatusBadRequest
	case errors.Is(err, ErrNotOpen):
		code = http.StatusConflict
	case errors.Is(err, ErrDeviceNotFound):
		code = http.StatusNotFound
	}
	http.Error(w, err.Error(), code)
}

type deviceSummary struct {
	Index      int      `json:"index"`
	Vendor     string   `json:"vendor"`
	Model      string   `json:"model"`
	Status     string   `json:"status"`
	Samplerate uint64   `json:"samplerate"`
	NumProbes  int      `json:"numProbes"`
	Endpoints  []string `json:"endpoints"`
}

// Summary describes the device and lists the routes under it.
func (h *HTTPWrapper) Summary(w http.ResponseWriter, r *http.Request) {
	v, err := h.drv.InfoGet(h.index, InfoInstance)
	if err != nil {
		h.httpError(w, err)
		return
	}
	dev := v.(*Device)
	server.EncodeJSON(w, deviceSummary{
		Index:      dev.Index,
		Vendor:     dev.Profile().Vendor,
		Model:      dev.Profile().Model,
		Status:     dev.Status().String(),
		Samplerate: dev.Samplerate(),
		NumProbes:  dev.Profile().NumProbes,
		Endpoints:  h.rt.Endpoints(),
	})
}

// Status reports the device lifecycle state as {"str": ...}.
func (h *HTTPWrapper) Status(w http.ResponseWriter, r *http.Request) {
	server.EncodeJSON(w, server.StrT{Str: h.drv.StatusGet(h.index).String()})
}

// Open opens and claims the device.
func (h *HTTPWrapper) Open(w http.ResponseWriter, r *http.Request) {
	if err := h.drv.DevOpen(h.index); err != nil {
		h.httpError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// Close releases the device.
func (h *HTTPWrapper) Close(w http.ResponseWriter, r *http.Request) {
	if err := h.drv.DevClose(h.index); err != nil {
		h.httpError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// GetSamplerate returns the configured rate as {"u64": ...}.
func (h *HTTPWrapper) GetSamplerate(w http.ResponseWriter, r *http.Request) {
	v, err := h.drv.InfoGet(h.index, InfoCurSamplerate)
	if err != nil {
		h.httpError(w, err)
		return
	}
	server.EncodeJSON(w, server.Uint64T{U64: v.(uint64)})
}

// SetSamplerate applies {"u64": rate}.
func (h *HTTPWrapper) SetSamplerate(w http.ResponseWriter, r *http.Request) {
	var in server.Uint64T
	if !server.DecodeJSON(w, r, &in) {
		return
	}
	if err := h.drv.ConfigSet(h.index, CapSamplerate, in.U64); err != nil {
		h.httpError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// Samplerates lists the supported rates.
func (h *HTTPWrapper) Samplerates(w http.ResponseWriter, r *http.Request) {
	server.EncodeJSON(w, DefaultSamplerates)
}

// SetLimitSamples applies {"u64": limit}; zero means unbounded.
func (h *HTTPWrapper) SetLimitSamples(w http.ResponseWriter, r *http.Request) {
	var in server.Uint64T
	if !server.DecodeJSON(w, r, &in) {
		return
	}
	if err := h.drv.ConfigSet(h.index, CapLimitSamples, in.U64); err != nil {
		h.httpError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// SetProbes applies a JSON probe list.
func (h *HTTPWrapper) SetProbes(w http.ResponseWriter, r *http.Request) {
	var in []ProbeConfig
	if !server.DecodeJSON(w, r, &in) {
		return
	}
	if err := h.drv.ConfigSet(h.index, CapProbeConfig, in); err != nil {
		h.httpError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// StartAcquisition begins capturing into the wrapper's buffer, replacing
// any previous capture.
func (h *HTTPWrapper) StartAcquisition(w http.ResponseWriter, r *http.Request) {
	h.capture.Reset()
	if err := h.drv.AcquisitionStart(h.index, h.capture); err != nil {
		h.httpError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// StopAcquisition ends the capture; the data stays downloadable.
func (h *HTTPWrapper) StopAcquisition(w http.ResponseWriter, r *http.Request) {
	if err := h.drv.AcquisitionStop(h.index); err != nil {
		h.httpError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// Capture downloads the captured sample bytes.
func (h *HTTPWrapper) Capture(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Write(h.capture.Bytes())
}
