package app

import (
	"context"
	"fmt"

	"workshop-recorder/internal/config"
	"workshop-recorder/internal/service/capture"
	"workshop-recorder/internal/service/capture/ffmpeg"
	"workshop-recorder/internal/service/capture/wavfile"
	"workshop-recorder/internal/service/processor"
	"workshop-recorder/internal/service/stt"
	"workshop-recorder/internal/service/stt/google"
	"workshop-recorder/internal/service/stt/mock"
	"workshop-recorder/internal/service/upload"
)

// NewDevice builds the configured capture device.
func NewDevice(cfg config.CaptureConfig) (capture.Device, error) {
	switch cfg.Source {
	case "", "ffmpeg":
		fc := ffmpeg.DefaultConfig()
		if cfg.FFmpegBinary != "" {
			fc.Binary = cfg.FFmpegBinary
		}
		if cfg.InputFormat != "" {
			fc.InputFormat = cfg.InputFormat
		}
		if cfg.InputDevice != "" {
			fc.InputDevice = cfg.InputDevice
		}
		if cfg.SampleRateHz > 0 {
			fc.Format.SampleRateHz = cfg.SampleRateHz
		}
		if cfg.Channels > 0 {
			fc.Format.Channels = cfg.Channels
		}
		return ffmpeg.New(fc), nil
	case "wav":
		if cfg.WAVPath == "" {
			return nil, fmt.Errorf("capture source wav requires a wav path")
		}
		return wavfile.New(wavfile.Config{Path: cfg.WAVPath, Realtime: cfg.Realtime}), nil
	default:
		return nil, fmt.Errorf("unknown capture source %q", cfg.Source)
	}
}

// NewTranscriber builds the configured STT provider. Provider "none"
// returns nil and the pipeline skips transcription.
func NewTranscriber(ctx context.Context, cfg config.STTConfig) (stt.Transcriber, error) {
	switch cfg.Provider {
	case "none", "":
		return nil, nil
	case "mock":
		return mock.New(), nil
	case "google":
		gc := google.DefaultConfig()
		gc.LanguageCode = cfg.LanguageCode
		gc.SampleRateHz = cfg.SampleRateHz
		gc.AudioEncoding = cfg.AudioEncoding
		gc.Model = cfg.Model
		t, err := google.New(ctx, gc)
		if err != nil {
			return nil, err
		}
		return t, nil
	default:
		return nil, fmt.Errorf("unknown STT provider %q", cfg.Provider)
	}
}

// NewUploader builds the backend client, or nil when uploads are disabled.
func NewUploader(cfg config.UploadConfig) processor.Uploader {
	if !cfg.Enabled {
		return nil
	}
	return upload.New(upload.Config{
		BaseURL:  cfg.BaseURL,
		APIToken: cfg.APIToken,
		Timeout:  cfg.Timeout,
		Analyze:  cfg.Analyze,
	})
}
