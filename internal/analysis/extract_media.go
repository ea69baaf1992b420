package analysis

import (
	"bytes"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strconv"

	"github.com/gabriel-vasile/mimetype"
)

// extractImage reads dimensions where the stdlib decoders apply and falls
// back to the detected type otherwise. Images never take the binary fallback
// path: an unreadable image is still reported as an image.
func extractImage(_ string, data []byte) (Result, error) {
	if len(data) == 0 {
		return Result{}, nil
	}
	md := map[string]string{"mime": mimetype.Detect(data).String()}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err == nil {
		md["format"] = format
		md["width"] = strconv.Itoa(cfg.Width)
		md["height"] = strconv.Itoa(cfg.Height)
	}
	return Result{Metadata: md}, nil
}

// extractAudio recognizes the common container headers and records what the
// header gives away cheaply.
func extractAudio(_ string, data []byte) (Result, error) {
	if len(data) == 0 {
		return Result{}, nil
	}
	md := map[string]string{"mime": mimetype.Detect(data).String()}
	switch {
	case bytes.HasPrefix(data, []byte("ID3")):
		md["format"] = "mp3"
		if len(data) >= 4 {
			md["id3_version"] = "2." + strconv.Itoa(int(data[3]))
		}
	case len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		md["format"] = "mp3"
	case bytes.HasPrefix(data, []byte("RIFF")) && len(data) >= 12 && bytes.Equal(data[8:12], []byte("WAVE")):
		md["format"] = "wav"
		if rate := wavSampleRate(data); rate > 0 {
			md["sample_rate"] = strconv.Itoa(rate)
		}
	case bytes.HasPrefix(data, []byte("fLaC")):
		md["format"] = "flac"
	case bytes.HasPrefix(data, []byte("OggS")):
		md["format"] = "ogg"
	}
	return Result{Metadata: md}, nil
}

// wavSampleRate reads the sample rate out of a canonical fmt chunk.
func wavSampleRate(data []byte) int {
	i := bytes.Index(data, []byte("fmt "))
	if i < 0 || i+16 > len(data) {
		return 0
	}
	off := i + 12
	return int(data[off]) | int(data[off+1])<<8 | int(data[off+2])<<16 | int(data[off+3])<<24
}

// extractVideo records the container brand from an ISO base media ftyp box
// when present, otherwise just the detected type.
func extractVideo(_ string, data []byte) (Result, error) {
	if len(data) == 0 {
		return Result{}, nil
	}
	md := map[string]string{"mime": mimetype.Detect(data).String()}
	if len(data) >= 12 && bytes.Equal(data[4:8], []byte("ftyp")) {
		md["container"] = "iso-bmff"
		if brand := string(bytes.TrimSpace(data[8:12])); isPrintable(brand) {
			md["brand"] = brand
		}
	} else if bytes.HasPrefix(data, []byte{0x1A, 0x45, 0xDF, 0xA3}) {
		md["container"] = "matroska"
	} else if bytes.HasPrefix(data, []byte("RIFF")) && len(data) >= 12 && bytes.Equal(data[8:12], []byte("AVI ")) {
		md["container"] = "avi"
	}
	return Result{Metadata: md}, nil
}

func isPrintable(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < 0x20 || s[i] > 0x7E {
			return false
		}
	}
	return true
}
