package voiceprint

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"speakerkit/audio"
)

// ErrNoUsableAudio ни один из переданных сэмплов не дал пригодного
// эмбеддинга
var ErrNoUsableAudio = errors.New("no usable audio for enrollment")

// Embedder превращает моно PCM в эмбеддинг голоса. Сэмплы приходят с
// частотой, под которую создан конкретный бэкенд (обычно 16 кГц)
type Embedder interface {
	Embed(ctx context.Context, samples []float32) ([]float32, error)
}

// EnrollConfig параметры регистрации спикера
type EnrollConfig struct {
	WindowS    float64 // длина окна усреднения, сек
	HopS       float64 // шаг окна, сек
	MinTotalS  float64 // сэмплы короче обрабатываются одним окном целиком
	SampleRate int
	ClipDir    string // каталог для аудио-клипов профилей; пусто — клипы не пишутся
}

// DefaultEnrollConfig возвращает параметры регистрации по умолчанию
func DefaultEnrollConfig() EnrollConfig {
	return EnrollConfig{
		WindowS:    1.5,
		HopS:       0.75,
		MinTotalS:  1.0,
		SampleRate: 16000,
	}
}

// EnrollRequest запрос на регистрацию спикера
type EnrollRequest struct {
	ID      string // пусто — генерируется UUID (Merge при этом невозможен)
	Name    string
	Tags    []string
	Sources []SourceRef // по одному на сэмпл, в том же порядке; может быть короче
	Merge   bool        // объединить с существующим профилем вместо замены
}

// Enroller регистрирует спикеров: считает отпечаток по сэмплам и
// сохраняет профиль в хранилище
type Enroller struct {
	store    Store
	embedder Embedder
	config   EnrollConfig

	// конкурентные Enroll с одним id сериализуются, чтобы
	// read-modify-write при Merge не терял обновления
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewEnroller создаёт сервис регистрации
func NewEnroller(store Store, embedder Embedder, config EnrollConfig) *Enroller {
	if config.WindowS <= 0 || config.HopS <= 0 || config.SampleRate <= 0 {
		def := DefaultEnrollConfig()
		def.ClipDir = config.ClipDir
		config = def
	}
	return &Enroller{
		store:    store,
		embedder: embedder,
		config:   config,
		locks:    make(map[string]*sync.Mutex),
	}
}

// Enroll считает отпечаток по сэмплам и сохраняет профиль.
//
// Каждый сэмпл нарезается скользящими окнами (WindowS/HopS), эмбеддинги
// окон усредняются в вектор сэмпла; сэмпл короче MinTotalS идёт одним
// окном. Вектора сэмплов усредняются и нормализуются в итоговый
// отпечаток. Сэмпл, не давший ни одного эмбеддинга, пропускается с
// записью в лог; если таких все — ErrNoUsableAudio.
//
// При Merge существующий профиль не заменяется: отпечатки складываются
// со взвешиванием по числу сэмплов, теги объединяются, источники
// дописываются, CreatedAt сохраняется
func (e *Enroller) Enroll(ctx context.Context, req EnrollRequest, samples [][]float32) (*SpeakerProfile, error) {
	if req.Name == "" {
		return nil, fmt.Errorf("speaker name is empty")
	}
	if len(samples) == 0 {
		return nil, ErrNoUsableAudio
	}

	id := req.ID
	if id == "" {
		if req.Merge {
			return nil, fmt.Errorf("merge requires an explicit profile id")
		}
		id = uuid.New().String()
	}

	vectors := make([][]float32, 0, len(samples))
	firstUsable := -1
	for i, sample := range samples {
		vec, err := e.embedSample(ctx, sample)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Printf("[Enroll] Сэмпл %d/%d пропущен (%s): %v", i+1, len(samples), req.Name, err)
			continue
		}
		if firstUsable < 0 {
			firstUsable = i
		}
		vectors = append(vectors, vec)
	}
	if len(vectors) == 0 {
		return nil, ErrNoUsableAudio
	}

	newPrint := NewVoiceprint(MeanVector(vectors))

	unlock := e.lockProfile(id)
	defer unlock()

	now := time.Now().UTC()
	profile := SpeakerProfile{
		ID:          id,
		Name:        req.Name,
		Voiceprint:  newPrint,
		Tags:        mergeTags(req.Tags),
		SampleCount: len(vectors),
		Sources:     append([]SourceRef(nil), req.Sources...),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if req.Merge {
		existing, err := e.store.Get(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("enroll: %w", err)
		}
		if existing != nil {
			profile = mergeProfiles(*existing, profile, len(vectors))
		}
	}

	if e.config.ClipDir != "" {
		if path, err := e.writeClip(profile.ID, samples[firstUsable]); err != nil {
			log.Printf("[Enroll] Не удалось записать клип для %s: %v", req.Name, err)
		} else {
			profile.SamplePath = path
		}
	}

	if err := e.store.Upsert(ctx, profile); err != nil {
		return nil, fmt.Errorf("enroll: %w", err)
	}

	log.Printf("[Enroll] Профиль сохранён: %s (%s, сэмплов всего %d)", profile.Name, profile.ID, profile.SampleCount)
	return &profile, nil
}

// Rename меняет имя существующего профиля
func (e *Enroller) Rename(ctx context.Context, id, newName string) (*SpeakerProfile, error) {
	if newName == "" {
		return nil, fmt.Errorf("speaker name is empty")
	}

	unlock := e.lockProfile(id)
	defer unlock()

	profile, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("rename: %w", err)
	}
	if profile == nil {
		return nil, fmt.Errorf("profile not found: %s", id)
	}

	profile.Name = newName
	profile.UpdatedAt = time.Now().UTC()
	if err := e.store.Upsert(ctx, *profile); err != nil {
		return nil, fmt.Errorf("rename: %w", err)
	}
	return profile, nil
}

// embedSample усредняет эмбеддинги скользящих окон одного сэмпла
func (e *Enroller) embedSample(ctx context.Context, sample []float32) ([]float32, error) {
	if len(sample) == 0 {
		return nil, fmt.Errorf("empty sample")
	}

	rate := float64(e.config.SampleRate)
	winLen := int(e.config.WindowS * rate)
	hopLen := int(e.config.HopS * rate)
	minLen := int(e.config.MinTotalS * rate)

	var windows [][]float32
	if len(sample) < minLen || winLen <= 0 || hopLen <= 0 {
		windows = [][]float32{sample}
	} else {
		for start := 0; start < len(sample); start += hopLen {
			end := start + winLen
			if end > len(sample) {
				end = len(sample)
			}
			windows = append(windows, sample[start:end])
			if end == len(sample) {
				break
			}
		}
	}

	vectors := make([][]float32, 0, len(windows))
	for _, window := range windows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vec, err := e.embedder.Embed(ctx, window)
		if err != nil {
			log.Printf("[Enroll] Окно пропущено: %v", err)
			continue
		}
		if vectorNorm(vec) == 0 {
			continue
		}
		vectors = append(vectors, vec)
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("no usable windows")
	}

	return NormalizeVector(MeanVector(vectors)), nil
}

// writeClip сохраняет первый пригодный сэмпл как MP3 рядом с профилями
func (e *Enroller) writeClip(id string, sample []float32) (string, error) {
	path := filepath.Join(e.config.ClipDir, id+".mp3")
	if err := audio.WriteMP3(path, e.config.SampleRate, sample); err != nil {
		return "", err
	}
	return path, nil
}

// lockProfile сериализует операции над одним профилем
func (e *Enroller) lockProfile(id string) func() {
	e.mu.Lock()
	lock, ok := e.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		e.locks[id] = lock
	}
	e.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}

// mergeProfiles объединяет существующий профиль с новой регистрацией.
// Отпечатки складываются со взвешиванием по числу сэмплов и
// нормализуются, так что повторная регистрация того же аудио не меняет
// направление отпечатка
func mergeProfiles(existing, incoming SpeakerProfile, newSamples int) SpeakerProfile {
	merged := existing.Clone()
	merged.Name = incoming.Name
	merged.Tags = mergeTags(existing.Tags, incoming.Tags)
	merged.Sources = append(merged.Sources, incoming.Sources...)
	merged.SampleCount = existing.SampleCount + newSamples
	merged.UpdatedAt = incoming.UpdatedAt

	oldW := float64(existing.SampleCount)
	newW := float64(newSamples)
	if oldW <= 0 {
		oldW = 1
	}

	combined := make([]float32, len(incoming.Voiceprint.Values))
	for i := range combined {
		var old float32
		if i < len(existing.Voiceprint.Values) {
			old = existing.Voiceprint.Values[i]
		}
		combined[i] = float32(float64(old)*oldW + float64(incoming.Voiceprint.Values[i])*newW)
	}
	merged.Voiceprint = NewVoiceprint(combined)
	return merged
}
