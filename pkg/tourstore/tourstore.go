// Package tourstore implements the Tour Store (C8): versioned, file-based
// persistence for tours, one directory per tour under
// "<root>/tours/<city-slug>/<tour-id>/". Writes within a tour serialize
// through a per-tour mutex (spec §5: "concurrent edits to the same tour must
// serialize via a per-tour mutex"), following the same per-key-mutex shape
// pkg/distancecache uses for its per-city matrices.
package tourstore

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"tripweave/pkg/model"
	"tripweave/pkg/planerr"
)

// Store is the file-based Tour Store. One Store serves every city and tour
// under rootDir; tourDir is "rootDir/tours/<city-slug>/<tour-id>/".
type Store struct {
	rootDir string

	mu    sync.Mutex // guards locks map itself, not tour contents
	locks map[string]*sync.Mutex
}

// New returns a Store rooted at rootDir (typically config.StoreConfig.RootDir).
func New(rootDir string) *Store {
	return &Store{rootDir: rootDir, locks: make(map[string]*sync.Mutex)}
}

func (s *Store) lockFor(tourID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[tourID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[tourID] = l
	}
	return l
}

func (s *Store) tourDir(city, tourID string) string {
	return filepath.Join(s.rootDir, "tours", slugify(city), tourID)
}

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

func slugify(s string) string {
	slug := nonAlnum.ReplaceAllString(strings.ToLower(strings.TrimSpace(s)), "-")
	return strings.Trim(slug, "-")
}

// HashInput returns a stable fingerprint of a PlanInput for change detection
// (spec §4.8: "hash inputs for change detection").
func HashInput(input model.PlanInput) string {
	data, _ := json.Marshal(input) // PlanInput's fields all marshal cleanly; error impossible
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// newTourID mints a tour identifier of the form
// "<city-slug>-tour-<yyyymmdd>-<hhmmss>-<6-hex>", the hex suffix taken from
// a fresh uuid so creates within the same second stay distinct.
func newTourID(city string) string {
	return fmt.Sprintf("%s-tour-%s-%s", slugify(city), time.Now().Format("20060102-150405"), uuid.New().String()[:6])
}

// Create starts a brand-new tour at version 1 for language tour.Language,
// writing metadata.json, the versioned and current tour files, the
// generation record, and an empty transcript-link file.
func (s *Store) Create(city string, input model.PlanInput, tour model.Tour, record model.GenerationRecord) (*model.Metadata, error) {
	tourID := newTourID(city)
	lock := s.lockFor(tourID)
	lock.Lock()
	defer lock.Unlock()

	now := time.Now()
	versionString := fmt.Sprintf("v1_%s", now.Format("2006-01-02"))

	tour.TourID = tourID
	tour.City = city
	tour.Version = 1
	record.Version = 1
	record.VersionString = versionString
	record.Timestamp = now
	record.Input = input
	record.InputParameterHash = HashInput(input)

	dir := s.tourDir(city, tourID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, planerr.IO("TOUR_STORE_MKDIR_FAILED", "failed to create tour directory", err)
	}

	if err := s.writeVersionFiles(dir, tour.Language, versionString, tour, record); err != nil {
		return nil, err
	}
	if err := writeJSONAtomic(filepath.Join(dir, fmt.Sprintf("transcript_links_%s.json", tour.Language)), []model.TranscriptLink{}); err != nil {
		return nil, err
	}

	meta := &model.Metadata{
		TourID:    tourID,
		City:      city,
		Languages: []string{tour.Language},
		CurrentVersion: map[string]int{tour.Language: 1},
		VersionHistory: map[string][]model.VersionInfo{
			tour.Language: {versionInfo(1, versionString, now, record)},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := writeJSONAtomic(filepath.Join(dir, "metadata.json"), meta); err != nil {
		return nil, err
	}
	return meta, nil
}

// AppendVersion writes a new version for an existing tour+language,
// advancing the metadata current_version pointer only after the versioned
// tour file and generation record are both durably written (spec §5's
// ordering guarantee). Concurrent calls for the same tourID serialize.
func (s *Store) AppendVersion(city, tourID, language string, tour model.Tour, record model.GenerationRecord) (*model.Metadata, error) {
	lock := s.lockFor(tourID)
	lock.Lock()
	defer lock.Unlock()

	dir := s.tourDir(city, tourID)
	meta, err := s.loadMetadataLocked(dir)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	nextVersion := meta.CurrentVersion[language] + 1
	versionString := fmt.Sprintf("v%d_%s", nextVersion, now.Format("2006-01-02"))

	tour.TourID = tourID
	tour.City = city
	tour.Language = language
	tour.Version = nextVersion
	record.Version = nextVersion
	record.VersionString = versionString
	record.Timestamp = now
	record.InputParameterHash = HashInput(record.Input)

	// Durable history first: if either write fails, metadata (and therefore
	// the current pointer) is never touched, so the previous version
	// remains canonical.
	if err := s.writeVersionFiles(dir, language, versionString, tour, record); err != nil {
		return nil, err
	}

	if !containsStr(meta.Languages, language) {
		meta.Languages = append(meta.Languages, language)
	}
	if meta.CurrentVersion == nil {
		meta.CurrentVersion = make(map[string]int)
	}
	meta.CurrentVersion[language] = nextVersion
	meta.VersionHistory[language] = append(meta.VersionHistory[language], versionInfo(nextVersion, versionString, now, record))
	meta.UpdatedAt = now

	if err := writeJSONAtomic(filepath.Join(dir, "metadata.json"), meta); err != nil {
		return nil, err
	}
	return meta, nil
}

// writeVersionFiles writes the versioned-history pair (tour + generation
// record) and then overwrites the per-language "current" tour file. All
// three writes are individually atomic (tmp + rename); a failure partway
// through is safe to retry since later AppendVersion calls recompute
// nextVersion from metadata, which is only updated by the caller afterward.
func (s *Store) writeVersionFiles(dir, language, versionString string, tour model.Tour, record model.GenerationRecord) error {
	versionedPath := filepath.Join(dir, fmt.Sprintf("tour_%s_%s.json", versionString, language))
	if err := writeJSONAtomic(versionedPath, tour); err != nil {
		return err
	}
	recordPath := filepath.Join(dir, fmt.Sprintf("generation_record_%s_%s.json", versionString, language))
	if err := writeJSONAtomic(recordPath, record); err != nil {
		return err
	}
	currentPath := filepath.Join(dir, fmt.Sprintf("tour_%s.json", language))
	if err := writeJSONAtomic(currentPath, tour); err != nil {
		return err
	}
	return nil
}

func versionInfo(version int, versionString string, timestamp time.Time, record model.GenerationRecord) model.VersionInfo {
	return model.VersionInfo{
		Version:              version,
		VersionString:        versionString,
		Timestamp:            timestamp,
		InputParameterHash:   record.InputParameterHash,
		OptimizationScore:    record.Scores.OverallScore,
		ConstraintViolations: record.ConstraintViolations,
	}
}

// Load reads the current tour for (city, tourID, language).
func (s *Store) Load(city, tourID, language string) (*model.Tour, error) {
	lock := s.lockFor(tourID)
	lock.Lock()
	defer lock.Unlock()

	dir := s.tourDir(city, tourID)
	var tour model.Tour
	if err := readJSON(filepath.Join(dir, fmt.Sprintf("tour_%s.json", language)), &tour); err != nil {
		return nil, err
	}
	return &tour, nil
}

// LoadVersion reads a specific historical version of a tour.
func (s *Store) LoadVersion(city, tourID, language, versionString string) (*model.Tour, error) {
	lock := s.lockFor(tourID)
	lock.Lock()
	defer lock.Unlock()

	dir := s.tourDir(city, tourID)
	var tour model.Tour
	if err := readJSON(filepath.Join(dir, fmt.Sprintf("tour_%s_%s.json", versionString, language)), &tour); err != nil {
		return nil, err
	}
	return &tour, nil
}

// LoadGenerationRecord reads the generation record for a specific version.
func (s *Store) LoadGenerationRecord(city, tourID, language, versionString string) (*model.GenerationRecord, error) {
	lock := s.lockFor(tourID)
	lock.Lock()
	defer lock.Unlock()

	dir := s.tourDir(city, tourID)
	var record model.GenerationRecord
	if err := readJSON(filepath.Join(dir, fmt.Sprintf("generation_record_%s_%s.json", versionString, language)), &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// LoadMetadata reads a tour's identity/version-history record.
func (s *Store) LoadMetadata(city, tourID string) (*model.Metadata, error) {
	lock := s.lockFor(tourID)
	lock.Lock()
	defer lock.Unlock()
	return s.loadMetadataLocked(s.tourDir(city, tourID))
}

func (s *Store) loadMetadataLocked(dir string) (*model.Metadata, error) {
	var meta model.Metadata
	if err := readJSON(filepath.Join(dir, "metadata.json"), &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// LoadTranscriptLinks reads the transcript-link records for a language.
func (s *Store) LoadTranscriptLinks(city, tourID, language string) ([]model.TranscriptLink, error) {
	lock := s.lockFor(tourID)
	lock.Lock()
	defer lock.Unlock()

	var links []model.TranscriptLink
	dir := s.tourDir(city, tourID)
	if err := readJSON(filepath.Join(dir, fmt.Sprintf("transcript_links_%s.json", language)), &links); err != nil {
		return nil, err
	}
	return links, nil
}

// SaveTranscriptLinks overwrites the transcript-link records for a language.
func (s *Store) SaveTranscriptLinks(city, tourID, language string, links []model.TranscriptLink) error {
	lock := s.lockFor(tourID)
	lock.Lock()
	defer lock.Unlock()

	dir := s.tourDir(city, tourID)
	return writeJSONAtomic(filepath.Join(dir, fmt.Sprintf("transcript_links_%s.json", language)), links)
}

// List enumerates every tour under every city, each enriched with its
// per-language current-version summary, sorted by updated_at descending.
func (s *Store) List() ([]model.TourSummary, error) {
	toursRoot := filepath.Join(s.rootDir, "tours")
	cityDirs, err := os.ReadDir(toursRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, planerr.IO("TOUR_STORE_LIST_FAILED", "failed to list tours directory", err)
	}

	var summaries []model.TourSummary
	for _, cityDir := range cityDirs {
		if !cityDir.IsDir() {
			continue
		}
		cityPath := filepath.Join(toursRoot, cityDir.Name())
		tourDirs, err := os.ReadDir(cityPath)
		if err != nil {
			return nil, planerr.IO("TOUR_STORE_LIST_FAILED", "failed to list city tours", err)
		}
		for _, tourDir := range tourDirs {
			if !tourDir.IsDir() {
				continue
			}
			var meta model.Metadata
			metaPath := filepath.Join(cityPath, tourDir.Name(), "metadata.json")
			if err := readJSON(metaPath, &meta); err != nil {
				continue // a partially-written or corrupt tour directory is skipped, not fatal to listing
			}
			summaries = append(summaries, model.TourSummary{
				TourID:         meta.TourID,
				City:           meta.City,
				Languages:      meta.Languages,
				CurrentVersion: meta.CurrentVersion,
				UpdatedAt:      meta.UpdatedAt,
			})
		}
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].UpdatedAt.After(summaries[j].UpdatedAt)
	})
	return summaries, nil
}

func writeJSONAtomic(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return planerr.IO("TOUR_STORE_MKDIR_FAILED", "failed to create tour directory", err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return planerr.IO("TOUR_STORE_MARSHAL_FAILED", fmt.Sprintf("failed to marshal %s", filepath.Base(path)), err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return planerr.IO("TOUR_STORE_WRITE_FAILED", fmt.Sprintf("failed to write %s", filepath.Base(path)), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return planerr.IO("TOUR_STORE_WRITE_FAILED", fmt.Sprintf("failed to finalize %s", filepath.Base(path)), err)
	}
	return nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return planerr.NotFound("TOUR_NOT_FOUND", fmt.Sprintf("%s does not exist", filepath.Base(path)))
		}
		return planerr.IO("TOUR_STORE_READ_FAILED", fmt.Sprintf("failed to read %s", filepath.Base(path)), err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return planerr.IO("TOUR_STORE_CORRUPT", fmt.Sprintf("failed to parse %s", filepath.Base(path)), err)
	}
	return nil
}

func containsStr(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
