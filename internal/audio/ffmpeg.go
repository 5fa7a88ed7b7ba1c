package audio

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// decodeWithFFmpeg shells out to ffmpeg to convert an arbitrary container or
// codec into mono 16-bit WAV at the target rate, then parses the result
// in-process. Any decode failure maps to ErrUnsupportedFormat since ffmpeg
// handles every codec we intend to support.
func decodeWithFFmpeg(ctx context.Context, ffmpegPath string, data []byte, targetRate int) ([]float64, int, error) {
	tmpDir, err := os.MkdirTemp("", "speechforge-decode-")
	if err != nil {
		return nil, 0, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	in := filepath.Join(tmpDir, "input")
	if err := os.WriteFile(in, data, 0o600); err != nil {
		return nil, 0, fmt.Errorf("write temp input: %w", err)
	}
	out := filepath.Join(tmpDir, "decoded.wav")

	cmd := exec.CommandContext(ctx, ffmpegPath,
		"-y", "-i", in,
		"-ac", "1",
		"-ar", fmt.Sprint(targetRate),
		"-sample_fmt", "s16",
		"-f", "wav",
		out,
	)
	var stderr strings.Builder
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, 0, ctx.Err()
		}
		return nil, 0, fmt.Errorf("%w: ffmpeg decode failed: %s", ErrUnsupportedFormat, lastLine(stderr.String()))
	}

	decoded, err := os.ReadFile(out)
	if err != nil {
		return nil, 0, fmt.Errorf("read decoded audio: %w", err)
	}
	return ParseWAV(decoded)
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) == 0 {
		return ""
	}
	return strings.TrimSpace(lines[len(lines)-1])
}
