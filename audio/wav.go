package audio

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// ReadWAVMono читает PCM16 WAV файл и возвращает моно float32 [-1, 1]
// и частоту дискретизации. Многоканальный звук усредняется в моно
func ReadWAVMono(path string) ([]float32, int, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open WAV file: %w", err)
	}
	defer file.Close()

	var riff [12]byte
	if _, err := io.ReadFull(file, riff[:]); err != nil {
		return nil, 0, fmt.Errorf("failed to read RIFF header: %w", err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return nil, 0, fmt.Errorf("not a WAV file: %s", path)
	}

	var (
		channels      int
		sampleRate    int
		bitsPerSample int
		data          []byte
	)

	// идём по чанкам: нужен fmt до data
	for {
		var chunkHeader [8]byte
		if _, err := io.ReadFull(file, chunkHeader[:]); err != nil {
			if err == io.EOF {
				break
			}
			return nil, 0, fmt.Errorf("failed to read chunk header: %w", err)
		}
		chunkID := string(chunkHeader[0:4])
		chunkSize := binary.LittleEndian.Uint32(chunkHeader[4:8])

		switch chunkID {
		case "fmt ":
			fmtChunk := make([]byte, chunkSize)
			if _, err := io.ReadFull(file, fmtChunk); err != nil {
				return nil, 0, fmt.Errorf("failed to read fmt chunk: %w", err)
			}
			format := binary.LittleEndian.Uint16(fmtChunk[0:2])
			if format != 1 {
				return nil, 0, fmt.Errorf("unsupported WAV format %d (only PCM)", format)
			}
			channels = int(binary.LittleEndian.Uint16(fmtChunk[2:4]))
			sampleRate = int(binary.LittleEndian.Uint32(fmtChunk[4:8]))
			bitsPerSample = int(binary.LittleEndian.Uint16(fmtChunk[14:16]))
		case "data":
			data = make([]byte, chunkSize)
			n, err := io.ReadFull(file, data)
			if err != nil && err != io.ErrUnexpectedEOF {
				return nil, 0, fmt.Errorf("failed to read data chunk: %w", err)
			}
			data = data[:n]
		default:
			// пропускаем чужие чанки (LIST, fact и т.п.)
			if _, err := file.Seek(int64(chunkSize), io.SeekCurrent); err != nil {
				return nil, 0, fmt.Errorf("failed to skip chunk %q: %w", chunkID, err)
			}
		}

		if data != nil && sampleRate != 0 {
			break
		}
	}

	if sampleRate == 0 || channels == 0 {
		return nil, 0, fmt.Errorf("missing fmt chunk in %s", path)
	}
	if bitsPerSample != 16 {
		return nil, 0, fmt.Errorf("unsupported bit depth %d (only 16-bit PCM)", bitsPerSample)
	}
	if data == nil {
		return nil, 0, fmt.Errorf("missing data chunk in %s", path)
	}

	frameSize := channels * 2
	numFrames := len(data) / frameSize
	mono := make([]float32, numFrames)
	for i := 0; i < numFrames; i++ {
		var sum float32
		for c := 0; c < channels; c++ {
			sample := int16(binary.LittleEndian.Uint16(data[i*frameSize+c*2:]))
			sum += float32(sample) / 32768.0
		}
		mono[i] = sum / float32(channels)
	}

	return mono, sampleRate, nil
}

// WriteWAV пишет моно float32 как PCM16 WAV
func WriteWAV(path string, sampleRate int, samples []float32) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create WAV file: %w", err)
	}
	defer file.Close()

	dataSize := uint32(len(samples) * 2)
	byteRate := uint32(sampleRate * 2)

	file.WriteString("RIFF")
	binary.Write(file, binary.LittleEndian, uint32(36+dataSize))
	file.WriteString("WAVE")

	file.WriteString("fmt ")
	binary.Write(file, binary.LittleEndian, uint32(16))
	binary.Write(file, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(file, binary.LittleEndian, uint16(1)) // mono
	binary.Write(file, binary.LittleEndian, uint32(sampleRate))
	binary.Write(file, binary.LittleEndian, byteRate)
	binary.Write(file, binary.LittleEndian, uint16(2)) // block align
	binary.Write(file, binary.LittleEndian, uint16(16))

	file.WriteString("data")
	binary.Write(file, binary.LittleEndian, dataSize)

	for _, s := range samples {
		if s > 1.0 {
			s = 1.0
		} else if s < -1.0 {
			s = -1.0
		}
		if err := binary.Write(file, binary.LittleEndian, int16(s*32767)); err != nil {
			return fmt.Errorf("failed to write samples: %w", err)
		}
	}
	return nil
}
