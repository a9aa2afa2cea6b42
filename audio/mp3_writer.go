package audio

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/braheezy/shine-mp3/pkg/mp3"
)

// mp3BlockSize shine кодирует блоками по 1152 сэмпла на канал
const mp3BlockSize = 1152

// WriteMP3 кодирует моно float32 в MP3 файл через shine-mp3.
// Хвост дополняется тишиной до границы блока
func WriteMP3(path string, sampleRate int, samples []float32) error {
	if len(samples) == 0 {
		return fmt.Errorf("no samples to encode")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create clip directory: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create MP3 file: %w", err)
	}
	defer file.Close()

	pcm := make([]int16, 0, len(samples)+mp3BlockSize)
	for _, s := range samples {
		if s > 1.0 {
			s = 1.0
		} else if s < -1.0 {
			s = -1.0
		}
		pcm = append(pcm, int16(s*32767))
	}
	for len(pcm)%mp3BlockSize != 0 {
		pcm = append(pcm, 0)
	}

	encoder := mp3.NewEncoder(sampleRate, 1)
	encoder.Write(file, pcm)
	return nil
}
