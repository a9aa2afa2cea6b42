package audio

import (
	"context"
	"fmt"
	"log"
	"math"
	"strings"
	"sync"

	"github.com/gen2brain/malgo"
)

// InputDevice устройство захвата звука
type InputDevice struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Recorder захват моно PCM с микрофона для регистрации спикеров
type Recorder struct {
	ctx        *malgo.AllocatedContext
	deviceID   *malgo.DeviceID
	sampleRate int

	mu      sync.Mutex
	running bool
}

// NewRecorder инициализирует аудио-контекст. sampleRate — частота,
// с которой захватывается PCM (обычно 16000 под модели эмбеддингов)
func NewRecorder(sampleRate int) (*Recorder, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to init audio context: %w", err)
	}
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	return &Recorder{ctx: ctx, sampleRate: sampleRate}, nil
}

// ListDevices возвращает доступные устройства захвата
func (r *Recorder) ListDevices() ([]InputDevice, error) {
	devices, err := r.ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate capture devices: %w", err)
	}

	out := make([]InputDevice, 0, len(devices))
	for _, dev := range devices {
		out = append(out, InputDevice{
			ID:   deviceIDToString(dev.ID),
			Name: dev.Name(),
		})
	}
	return out, nil
}

// SetDeviceByName выбирает устройство по имени (частичное совпадение,
// без учёта регистра). Пустое имя — устройство по умолчанию
func (r *Recorder) SetDeviceByName(name string) error {
	if name == "" {
		r.deviceID = nil
		return nil
	}

	devices, err := r.ctx.Devices(malgo.Capture)
	if err != nil {
		return err
	}
	nameLower := strings.ToLower(name)
	for _, dev := range devices {
		if strings.Contains(strings.ToLower(dev.Name()), nameLower) {
			id := dev.ID
			r.deviceID = &id
			log.Printf("[Audio] Устройство захвата: %s", dev.Name())
			return nil
		}
	}
	return fmt.Errorf("device not found: %s", name)
}

// Record пишет моно PCM с микрофона до отмены контекста и возвращает
// накопленные сэмплы
func (r *Recorder) Record(ctx context.Context) ([]float32, error) {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return nil, fmt.Errorf("already recording")
	}
	r.running = true
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
	}()

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = 1
	deviceConfig.SampleRate = uint32(r.sampleRate)
	deviceConfig.Alsa.NoMMap = 1
	if r.deviceID != nil {
		deviceConfig.Capture.DeviceID = r.deviceID.Pointer()
	}

	var (
		bufMu   sync.Mutex
		samples []float32
	)
	onRecvFrames := func(pOutputSample, pInputSamples []byte, framecount uint32) {
		count := int(framecount)
		if len(pInputSamples) != count*4 {
			return
		}
		chunk := make([]float32, count)
		for i := 0; i < count; i++ {
			bits := uint32(pInputSamples[i*4]) |
				uint32(pInputSamples[i*4+1])<<8 |
				uint32(pInputSamples[i*4+2])<<16 |
				uint32(pInputSamples[i*4+3])<<24
			chunk[i] = math.Float32frombits(bits)
		}
		bufMu.Lock()
		samples = append(samples, chunk...)
		bufMu.Unlock()
	}

	device, err := malgo.InitDevice(r.ctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: onRecvFrames,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to init capture device: %w", err)
	}
	defer device.Uninit()

	if err := device.Start(); err != nil {
		return nil, fmt.Errorf("failed to start capture: %w", err)
	}
	log.Printf("[Audio] Запись началась (%d Гц)", r.sampleRate)

	<-ctx.Done()
	device.Stop()

	bufMu.Lock()
	out := append([]float32(nil), samples...)
	bufMu.Unlock()

	log.Printf("[Audio] Запись остановлена: %d сэмплов (%.1f сек)",
		len(out), float64(len(out))/float64(r.sampleRate))
	return out, nil
}

// SampleRate частота захвата
func (r *Recorder) SampleRate() int {
	return r.sampleRate
}

// Close освобождает аудио-контекст
func (r *Recorder) Close() {
	if r.ctx != nil {
		r.ctx.Uninit()
		r.ctx.Free()
	}
}

func deviceIDToString(id malgo.DeviceID) string {
	var result strings.Builder
	for _, b := range id[:32] {
		if b == 0 {
			break
		}
		result.WriteByte(b)
	}
	return result.String()
}
