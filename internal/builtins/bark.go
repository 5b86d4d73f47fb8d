// ABOUTME: Speech synthesis capability backed by a local Bark installation.
// ABOUTME: Shells out to python; text and voice are passed as argv, never spliced into code.

package builtins

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/2389/hivenode/internal/tools"
)

// Bark limits.
const (
	BarkTimeout      = 120 * time.Second
	barkProbeTimeout = 5 * time.Second
	defaultBarkVoice = "v2/en_speaker_6"
)

// ErrBarkNotInstalled is returned when the python bark module is missing.
var ErrBarkNotInstalled = errors.New("bark not installed (pip install bark)")

const barkScript = `import sys
import bark
from scipy.io.wavfile import write as write_wav
audio = bark.generate_audio(sys.argv[1], history_prompt=sys.argv[2])
write_wav(sys.argv[3], bark.SAMPLE_RATE, audio)
print("done")
`

type barkArgs struct {
	Text  string `json:"text"`
	Voice string `json:"voice"`
}

// BarkTTS generates speech audio files.
type BarkTTS struct {
	python    string
	outputDir string
	now       func() time.Time
}

// NewBarkTTS creates the speech handler. Empty arguments default to
// "python" and the system temp directory.
func NewBarkTTS(python, outputDir string) *BarkTTS {
	if python == "" {
		python = "python"
	}
	if outputDir == "" {
		outputDir = os.TempDir()
	}
	return &BarkTTS{python: python, outputDir: outputDir, now: time.Now}
}

// Descriptor implements tools.Tool.
func (b *BarkTTS) Descriptor() tools.Descriptor {
	return tools.Descriptor{
		Name:        "bark_tts",
		Description: "Generate speech from text using Bark TTS",
		Params: []tools.Param{
			{Name: "text", Type: tools.TypeString, Required: true},
			{Name: "voice", Type: tools.TypeString, Description: "optional, default " + defaultBarkVoice},
		},
		Timeout: BarkTimeout,
	}
}

// Invoke implements tools.Tool.
func (b *BarkTTS) Invoke(ctx context.Context, raw json.RawMessage) (any, error) {
	args, err := tools.DecodeArgs[barkArgs](raw)
	if err != nil {
		return nil, err
	}
	if args.Voice == "" {
		args.Voice = defaultBarkVoice
	}

	if err := b.probe(ctx); err != nil {
		return nil, err
	}

	outPath := filepath.Join(b.outputDir, fmt.Sprintf("bark_%s.wav", b.now().Format("20060102_150405")))

	ctx, cancel := context.WithTimeout(ctx, BarkTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, b.python, "-c", barkScript, args.Text, args.Voice, outPath)
	out, err := cmd.CombinedOutput()
	if ctx.Err() == context.DeadlineExceeded {
		return nil, fmt.Errorf("speech generation timed out (%s)", BarkTimeout)
	}
	if err != nil {
		return nil, fmt.Errorf("speech generation failed: %w: %s", err, truncate(strings.TrimSpace(string(out)), MaxStderrBytes))
	}

	return map[string]any{"audio_path": outPath, "status": "generated"}, nil
}

// probe checks that python can import bark.
func (b *BarkTTS) probe(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, barkProbeTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, b.python, "-c", "import bark; print('ok')").Output()
	if err != nil || !strings.Contains(string(out), "ok") {
		return ErrBarkNotInstalled
	}
	return nil
}
