package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"catalog/internal/auth"
)

// UpcomingSessionsBase is the public class calendar search URL.
const UpcomingSessionsBase = "https://www.nypl.org/techconnect?keyword="

var (
	ErrInvalidCredentials = errors.New("incorrect username or password")
	ErrInactiveUser       = errors.New("inactive user")
	ErrInvalidInput       = errors.New("invalid input")
)

// Cache keys for the lookup lists.
const (
	cacheKeyLevels    = "levels"
	cacheKeyFormats   = "formats"
	cacheKeySeries    = "series"
	cacheKeyLanguages = "languages"
)

// CourseFilter narrows ListCourses. Empty fields do not filter.
type CourseFilter struct {
	Level  string
	Format string
	Series string
	Search string
}

type CourseSummary struct {
	ID         int64  `json:"id"`
	CourseName string `json:"course_name"`
}

type HandoutView struct {
	LanguageCode string `json:"language_code"`
	URL          string `json:"url"`
}

type CourseDetail struct {
	ID                  int64         `json:"id"`
	CourseName          string        `json:"course_name"`
	Description         string        `json:"description"`
	Level               string        `json:"level"`
	Format              string        `json:"format"`
	Series              []string      `json:"series"`
	Prereqs             []string      `json:"prereqs"`
	Handouts            []HandoutView `json:"available_handouts"`
	AdditionalMaterials []string      `json:"additional_materials"`
	UpcomingURL         string        `json:"link_to_upcoming_sessions"`
}

// UpcomingURL links a course name to its upcoming sessions.
func UpcomingURL(courseName string) string {
	return UpcomingSessionsBase + strings.ReplaceAll(courseName, " ", "+")
}

type Options struct {
	Cache    Cache
	CacheTTL time.Duration
	Hasher   auth.PasswordHasher
	Log      *zap.Logger
}

type Service struct {
	courses   *Repo[Course]
	levels    *Repo[Level]
	formats   *Repo[Format]
	series    *Repo[Series]
	languages *Repo[Language]
	handouts  *Repo[Handout]
	materials *Repo[AdditionalMaterial]
	users     *Repo[User]

	cache  Cache
	ttl    time.Duration
	hasher auth.PasswordHasher
	log    *zap.Logger
}

func NewService(db *gorm.DB, opt Options) *Service {
	if opt.Cache == nil {
		opt.Cache = NopCache{}
	}
	if opt.Log == nil {
		opt.Log = zap.NewNop()
	}
	return &Service{
		courses:   NewRepo[Course](db),
		levels:    NewRepo[Level](db),
		formats:   NewRepo[Format](db),
		series:    NewRepo[Series](db),
		languages: NewRepo[Language](db),
		handouts:  NewRepo[Handout](db),
		materials: NewRepo[AdditionalMaterial](db),
		users:     NewRepo[User](db),
		cache:     opt.Cache,
		ttl:       opt.CacheTTL,
		hasher:    opt.Hasher,
		log:       opt.Log,
	}
}

func norm(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// ListCourses returns courses matching every non-empty filter, by id.
func (s *Service) ListCourses(ctx context.Context, f CourseFilter) ([]CourseSummary, error) {
	scopes := []Scope{orderBy("courses.id")}
	if v := norm(f.Level); v != "" {
		scopes = append(scopes, func(db *gorm.DB) *gorm.DB {
			return db.Joins("JOIN levels ON levels.id = courses.level_id").Where("levels.level_name = ?", v)
		})
	}
	if v := norm(f.Format); v != "" {
		scopes = append(scopes, func(db *gorm.DB) *gorm.DB {
			return db.Joins("JOIN formats ON formats.id = courses.format_id").Where("formats.format_name = ?", v)
		})
	}
	if v := norm(f.Series); v != "" {
		scopes = append(scopes, func(db *gorm.DB) *gorm.DB {
			sub := db.Session(&gorm.Session{NewDB: true}).
				Table("course_series").
				Select("course_series.course_id").
				Joins("JOIN series ON series.id = course_series.series_id").
				Where("series.series_name = ?", v)
			return db.Where("courses.id IN (?)", sub)
		})
	}
	if v := norm(f.Search); v != "" {
		pat := "%" + likeEscaper.Replace(v) + "%"
		scopes = append(scopes, where(
			`LOWER(courses.course_name) LIKE ? ESCAPE '\' OR LOWER(courses.description) LIKE ? ESCAPE '\'`,
			pat, pat,
		))
	}

	rows, err := s.courses.List(ctx, scopes...)
	if err != nil {
		return nil, err
	}
	out := make([]CourseSummary, len(rows))
	for i, c := range rows {
		out[i] = CourseSummary{ID: c.ID, CourseName: c.CourseName}
	}
	return out, nil
}

func (s *Service) GetCourse(ctx context.Context, id int64) (CourseDetail, error) {
	c, err := s.courses.Get(ctx, id,
		preload("Level"),
		preload("Format"),
		preload("Series", orderBy("series.id")),
		preload("Prereqs", orderBy("courses.id")),
		preload("Handouts", orderBy("handouts.id")),
		preload("AdditionalMaterials", orderBy("additional_materials.id")),
	)
	if err != nil {
		return CourseDetail{}, err
	}

	d := CourseDetail{
		ID:                  c.ID,
		CourseName:          c.CourseName,
		Description:         c.Description,
		Level:               c.Level.LevelName,
		Format:              c.Format.FormatName,
		Series:              make([]string, 0, len(c.Series)),
		Prereqs:             make([]string, 0, len(c.Prereqs)),
		Handouts:            make([]HandoutView, 0, len(c.Handouts)),
		AdditionalMaterials: make([]string, 0, len(c.AdditionalMaterials)),
		UpcomingURL:         UpcomingURL(c.CourseName),
	}
	for _, x := range c.Series {
		d.Series = append(d.Series, x.SeriesName)
	}
	for _, p := range c.Prereqs {
		d.Prereqs = append(d.Prereqs, p.CourseName)
	}
	for _, h := range c.Handouts {
		d.Handouts = append(d.Handouts, HandoutView{LanguageCode: h.LanguageCode, URL: h.URL})
	}
	for _, m := range c.AdditionalMaterials {
		d.AdditionalMaterials = append(d.AdditionalMaterials, m.URL)
	}
	return d, nil
}

func (s *Service) courseExists(ctx context.Context, id int64) error {
	_, err := s.courses.Get(ctx, id, func(db *gorm.DB) *gorm.DB { return db.Select("id") })
	return err
}

// ListHandouts returns a course's handouts, optionally for one language.
func (s *Service) ListHandouts(ctx context.Context, courseID int64, languageCode string) ([]HandoutView, error) {
	if err := s.courseExists(ctx, courseID); err != nil {
		return nil, err
	}
	scopes := []Scope{where("course_id = ?", courseID), orderBy("id")}
	if lc := norm(languageCode); lc != "" {
		scopes = append(scopes, where("language_code = ?", lc))
	}
	rows, err := s.handouts.List(ctx, scopes...)
	if err != nil {
		return nil, err
	}
	out := make([]HandoutView, len(rows))
	for i, h := range rows {
		out[i] = HandoutView{LanguageCode: h.LanguageCode, URL: h.URL}
	}
	return out, nil
}

func (s *Service) ListAdditionalMaterials(ctx context.Context, courseID int64) ([]string, error) {
	if err := s.courseExists(ctx, courseID); err != nil {
		return nil, err
	}
	rows, err := s.materials.List(ctx, where("course_id = ?", courseID), orderBy("id"))
	if err != nil {
		return nil, err
	}
	out := make([]string, len(rows))
	for i, m := range rows {
		out[i] = m.URL
	}
	return out, nil
}

// cached serves key from the cache, loading and storing it on a miss.
// Cache failures are logged and never fail the request.
func cached[T any](ctx context.Context, s *Service, key string, load func(context.Context) (T, error)) (T, error) {
	var v T
	hit, err := s.cache.Get(ctx, key, &v)
	if err != nil {
		s.log.Warn("catalog cache read failed", zap.String("key", key), zap.Error(err))
	}
	if hit {
		return v, nil
	}

	v, err = load(ctx)
	if err != nil {
		return v, err
	}
	if err := s.cache.Set(ctx, key, v, s.ttl); err != nil {
		s.log.Warn("catalog cache write failed", zap.String("key", key), zap.Error(err))
	}
	return v, nil
}

func names[T any](ctx context.Context, r *Repo[T], name func(T) string) ([]string, error) {
	rows, err := r.List(ctx, orderBy("id"))
	if err != nil {
		return nil, err
	}
	out := make([]string, len(rows))
	for i, row := range rows {
		out[i] = name(row)
	}
	return out, nil
}

func (s *Service) ListLevels(ctx context.Context) ([]string, error) {
	return cached(ctx, s, cacheKeyLevels, func(ctx context.Context) ([]string, error) {
		return names(ctx, s.levels, func(l Level) string { return l.LevelName })
	})
}

func (s *Service) ListFormats(ctx context.Context) ([]string, error) {
	return cached(ctx, s, cacheKeyFormats, func(ctx context.Context) ([]string, error) {
		return names(ctx, s.formats, func(f Format) string { return f.FormatName })
	})
}

func (s *Service) ListSeries(ctx context.Context) ([]string, error) {
	return cached(ctx, s, cacheKeySeries, func(ctx context.Context) ([]string, error) {
		return names(ctx, s.series, func(x Series) string { return x.SeriesName })
	})
}

// ListLanguages maps language name to code.
func (s *Service) ListLanguages(ctx context.Context) (map[string]string, error) {
	return cached(ctx, s, cacheKeyLanguages, func(ctx context.Context) (map[string]string, error) {
		rows, err := s.languages.List(ctx)
		if err != nil {
			return nil, err
		}
		out := make(map[string]string, len(rows))
		for _, l := range rows {
			out[l.LanguageName] = l.LanguageCode
		}
		return out, nil
	})
}

// Register creates an active user.
func (s *Service) Register(ctx context.Context, username, password string) (User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return User{}, fmt.Errorf("%w: username and password are required", ErrInvalidInput)
	}

	_, err := s.users.First(ctx, where("username = ?", username))
	switch {
	case err == nil:
		return User{}, ErrConflict
	case !errors.Is(err, ErrNotFound):
		return User{}, err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return User{}, err
	}
	u := User{Username: username, HashedPassword: hash, IsActive: true}
	if err := s.users.Create(ctx, &u); err != nil {
		return User{}, err
	}
	s.log.Info("user registered", zap.Int64("user_id", u.ID))
	return u, nil
}

// Authenticate checks a username and password. Unknown users and wrong
// passwords both give ErrInvalidCredentials.
func (s *Service) Authenticate(ctx context.Context, username, password string) (User, error) {
	u, err := s.users.First(ctx, where("username = ?", strings.TrimSpace(username)))
	if errors.Is(err, ErrNotFound) {
		return User{}, ErrInvalidCredentials
	}
	if err != nil {
		return User{}, err
	}
	if err := s.hasher.Compare(u.HashedPassword, password); err != nil {
		return User{}, ErrInvalidCredentials
	}
	if !u.IsActive {
		return User{}, ErrInactiveUser
	}
	return *u, nil
}

// GetUser loads an active user by id.
func (s *Service) GetUser(ctx context.Context, id int64) (User, error) {
	u, err := s.users.Get(ctx, id)
	if err != nil {
		return User{}, err
	}
	if !u.IsActive {
		return User{}, ErrInactiveUser
	}
	return *u, nil
}
