package voiceprint

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// FileStore хранилище профилей в локальном каталоге: один JSON-файл на
// профиль. Профили кэшируются в памяти; перед каждым чтением каталог
// проверяется на внешние изменения по mtime и числу файлов, и при
// расхождении кэш перечитывается. Проверка и перечитывание идут под
// общим мьютексом, так что конкурентные вызовы видят согласованное
// состояние
type FileStore struct {
	dir string

	mu       sync.Mutex
	profiles map[string]SpeakerProfile
	sig      dirSignature
}

// dirSignature дешёвый признак изменения каталога
type dirSignature struct {
	count   int
	maxMod  time.Time
	scanned bool
}

// NewFileStore открывает (при необходимости создавая) каталог профилей
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	s := &FileStore{
		dir:      dir,
		profiles: make(map[string]SpeakerProfile),
	}

	s.mu.Lock()
	err := s.refreshLocked()
	n := len(s.profiles)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	log.Printf("[Voiceprint] FileStore открыт: %s (%d профилей)", dir, n)
	return s, nil
}

// Upsert сохраняет профиль в файл и кэш. Запись атомарна: временный
// файл + rename
func (s *FileStore) Upsert(ctx context.Context, profile SpeakerProfile) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if profile.ID == "" {
		return fmt.Errorf("profile id is empty")
	}
	// id становится именем файла и не должен выходить за каталог
	if strings.ContainsAny(profile.ID, `/\`) || profile.ID == "." || profile.ID == ".." {
		return fmt.Errorf("invalid profile id: %q", profile.ID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.refreshLocked(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(&profile, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal profile %s: %w", profile.ID, err)
	}

	path := s.profilePath(profile.ID)
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("%w: write %s: %v", ErrStoreUnavailable, tmpPath, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: rename %s: %v", ErrStoreUnavailable, path, err)
	}

	s.profiles[profile.ID] = profile.Clone()
	s.rescanSignatureLocked()
	return nil
}

// Get возвращает профиль по ID или nil
func (s *FileStore) Get(ctx context.Context, id string) (*SpeakerProfile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.refreshLocked(); err != nil {
		return nil, err
	}
	p, ok := s.profiles[id]
	if !ok {
		return nil, nil
	}
	out := p.Clone()
	return &out, nil
}

// List возвращает все профили в порядке создания
func (s *FileStore) List(ctx context.Context) ([]SpeakerProfile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.refreshLocked(); err != nil {
		return nil, err
	}
	return s.orderedLocked(), nil
}

// Search поиск ближайших профилей по косинусному сходству
func (s *FileStore) Search(ctx context.Context, query Voiceprint, topK int) ([]MatchCandidate, error) {
	return s.search(ctx, query, topK, nil)
}

// SearchFiltered как Search, но только среди профилей с именем из names
func (s *FileStore) SearchFiltered(ctx context.Context, query Voiceprint, topK int, names []string) ([]MatchCandidate, error) {
	return s.search(ctx, query, topK, names)
}

func (s *FileStore) search(ctx context.Context, query Voiceprint, topK int, names []string) ([]MatchCandidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.refreshLocked(); err != nil {
		return nil, err
	}

	pool := s.orderedLocked()
	if len(names) > 0 {
		filtered := pool[:0]
		for _, p := range pool {
			if matchesAnyName(p.Name, names) {
				filtered = append(filtered, p)
			}
		}
		pool = filtered
	}
	return rankCandidates(pool, query, topK), nil
}

// Delete удаляет файл профиля; false, если профиля не было
func (s *FileStore) Delete(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.refreshLocked(); err != nil {
		return false, err
	}
	if _, ok := s.profiles[id]; !ok {
		return false, nil
	}

	if err := os.Remove(s.profilePath(id)); err != nil && !os.IsNotExist(err) {
		return false, fmt.Errorf("%w: remove %s: %v", ErrStoreUnavailable, id, err)
	}
	delete(s.profiles, id)
	s.rescanSignatureLocked()

	log.Printf("[Voiceprint] Профиль удалён: %s", id)
	return true, nil
}

// Close для файлового бэкенда освобождать нечего
func (s *FileStore) Close() error {
	return nil
}

// Dir каталог хранилища (для размещения аудио-клипов рядом с профилями)
func (s *FileStore) Dir() string {
	return s.dir
}

func (s *FileStore) profilePath(id string) string {
	return filepath.Join(s.dir, id+".json")
}

// refreshLocked перечитывает каталог, если он изменился снаружи.
// Вызывать только при удержании mu
func (s *FileStore) refreshLocked() error {
	sig, err := s.currentSignature()
	if err != nil {
		return err
	}
	if s.sig.scanned && sig == s.sig {
		return nil
	}

	profiles := make(map[string]SpeakerProfile)
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("%w: read dir %s: %v", ErrStoreUnavailable, s.dir, err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(s.dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("%w: read %s: %v", ErrStoreUnavailable, path, err)
		}
		var p SpeakerProfile
		if err := json.Unmarshal(data, &p); err != nil {
			// повреждённый файл пропускаем, но не молча
			log.Printf("[Voiceprint] Пропущен нечитаемый профиль %s: %v", path, err)
			continue
		}
		if p.ID == "" {
			p.ID = strings.TrimSuffix(entry.Name(), ".json")
		}
		profiles[p.ID] = p
	}

	s.profiles = profiles
	s.sig = sig
	return nil
}

// rescanSignatureLocked обновляет признак каталога после собственной
// записи, чтобы она не выглядела внешним изменением
func (s *FileStore) rescanSignatureLocked() {
	if sig, err := s.currentSignature(); err == nil {
		s.sig = sig
	}
}

func (s *FileStore) currentSignature() (dirSignature, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return dirSignature{}, fmt.Errorf("%w: read dir %s: %v", ErrStoreUnavailable, s.dir, err)
	}
	sig := dirSignature{scanned: true}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		sig.count++
		if info.ModTime().After(sig.maxMod) {
			sig.maxMod = info.ModTime()
		}
	}
	return sig, nil
}

// orderedLocked копия профилей в порядке создания (при равенстве — по ID)
func (s *FileStore) orderedLocked() []SpeakerProfile {
	out := make([]SpeakerProfile, 0, len(s.profiles))
	for _, p := range s.profiles {
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
