package audio

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/hajimehoshi/go-mp3"
)

// ReadMP3Mono декодирует MP3 файл в моно float32 [-1, 1] и возвращает
// частоту дискретизации. go-mp3 всегда отдаёт signed 16-bit stereo,
// каналы усредняются
func ReadMP3Mono(path string) ([]float32, int, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open MP3 file: %w", err)
	}
	defer file.Close()

	decoder, err := mp3.NewDecoder(file)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create MP3 decoder: %w", err)
	}

	// Length() в байтах: 2 байта на сэмпл, 2 канала
	pcm := make([]byte, decoder.Length())
	n, err := io.ReadFull(decoder, pcm)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, 0, fmt.Errorf("failed to read PCM data: %w", err)
	}
	pcm = pcm[:n]

	numFrames := n / 4
	mono := make([]float32, numFrames)
	for i := 0; i < numFrames; i++ {
		left := int16(binary.LittleEndian.Uint16(pcm[i*4:]))
		right := int16(binary.LittleEndian.Uint16(pcm[i*4+2:]))
		mono[i] = (float32(left) + float32(right)) / 2 / 32768.0
	}

	return mono, decoder.SampleRate(), nil
}
