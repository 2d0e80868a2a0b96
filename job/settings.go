package job

import (
	"encoding/json"
	"fmt"
)

// Kind selects which processing pipeline a job uses.
type Kind string

const (
	// KindInterpolate is RIFE-style frame interpolation.
	KindInterpolate Kind = "interpolate"
	// KindUpscaleGAN is GAN super-resolution (Real-ESRGAN family models).
	KindUpscaleGAN Kind = "upscale_gan"
	// KindUpscaleCompact is lightweight SRVGGNet-compact super-resolution.
	KindUpscaleCompact Kind = "upscale_compact"
	// KindScale is plain non-AI scaling through the encoder alone.
	KindScale Kind = "scale"
)

// Valid reports whether k is a known processing kind.
func (k Kind) Valid() bool {
	switch k {
	case KindInterpolate, KindUpscaleGAN, KindUpscaleCompact, KindScale:
		return true
	}
	return false
}

// Settings is the tagged union of per-kind configuration. The payload is
// raw JSON interpreted only by the plugin registered for Kind; the queue
// core carries it opaquely.
type Settings struct {
	Kind    Kind            `json:"kind"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Clone returns a deep copy of the settings.
func (s Settings) Clone() Settings {
	cp := s
	if s.Payload != nil {
		cp.Payload = make(json.RawMessage, len(s.Payload))
		copy(cp.Payload, s.Payload)
	}
	return cp
}

// NewSettings wraps a typed settings struct into the tagged envelope.
// The kind tag is derived from the variant's type.
func NewSettings(v SettingsVariant) (Settings, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return Settings{}, fmt.Errorf("job: marshal %s settings: %w", v.SettingsKind(), err)
	}
	return Settings{Kind: v.SettingsKind(), Payload: payload}, nil
}

// SettingsVariant is implemented by every typed settings struct.
type SettingsVariant interface {
	SettingsKind() Kind
}

// DecodeSettings unmarshals the payload into the typed variant for T,
// verifying the envelope's kind tag first.
func DecodeSettings[T SettingsVariant](s Settings) (T, error) {
	var t T
	if s.Kind != t.SettingsKind() {
		return t, fmt.Errorf("job: settings kind mismatch: envelope %q, want %q", s.Kind, t.SettingsKind())
	}
	if len(s.Payload) > 0 {
		if err := json.Unmarshal(s.Payload, &t); err != nil {
			return t, fmt.Errorf("job: decode %s settings: %w", s.Kind, err)
		}
	}
	return t, nil
}

// InterpolateSettings configures RIFE-style frame interpolation.
type InterpolateSettings struct {
	// Model is the interpolation model name, e.g. "rife-v4.6".
	Model string `json:"model"`
	// TargetFPS is the output frame rate. Zero means double the source rate.
	TargetFPS float64 `json:"target_fps,omitempty"`
	// GPU selects the GPU device index.
	GPU int `json:"gpu,omitempty"`
	// UHD enables the model's UHD mode for 4K sources.
	UHD bool `json:"uhd,omitempty"`
	// TTA enables test-time augmentation (slower, marginally better).
	TTA bool `json:"tta,omitempty"`
}

// SettingsKind implements SettingsVariant.
func (InterpolateSettings) SettingsKind() Kind { return KindInterpolate }

// UpscaleParams holds the super-resolution fields shared by the GAN and
// compact variants.
type UpscaleParams struct {
	// Model is the super-resolution model name, e.g. "realesrgan-x4plus".
	Model string `json:"model"`
	// Scale is the upscale factor (2, 3, or 4).
	Scale int `json:"scale"`
	// TileSize bounds VRAM use; zero lets the backend decide.
	TileSize int `json:"tile_size,omitempty"`
	// GPU selects the GPU device index.
	GPU int `json:"gpu,omitempty"`
	// DenoiseStrength is 0–1 for models that support it.
	DenoiseStrength float64 `json:"denoise_strength,omitempty"`
}

// UpscaleGANSettings configures the GAN super-resolution backend.
type UpscaleGANSettings struct {
	UpscaleParams
}

// SettingsKind implements SettingsVariant.
func (UpscaleGANSettings) SettingsKind() Kind { return KindUpscaleGAN }

// UpscaleCompactSettings configures the compact super-resolution backend.
type UpscaleCompactSettings struct {
	UpscaleParams
}

// SettingsKind implements SettingsVariant.
func (UpscaleCompactSettings) SettingsKind() Kind { return KindUpscaleCompact }

// ScaleSettings configures plain non-AI scaling.
type ScaleSettings struct {
	// Width and Height are the output dimensions. One may be -1 to keep
	// the aspect ratio.
	Width  int `json:"width"`
	Height int `json:"height"`
	// Filter is the scaler, e.g. "lanczos" (default) or "bicubic".
	Filter string `json:"filter,omitempty"`
	// CRF is the encoder quality factor.
	CRF int `json:"crf,omitempty"`
	// Preset is the encoder speed preset.
	Preset string `json:"preset,omitempty"`
}

// SettingsKind implements SettingsVariant.
func (ScaleSettings) SettingsKind() Kind { return KindScale }
