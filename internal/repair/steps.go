package repair

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/abadojack/whatlanggo"

	"github.com/MimeLyc/cloudmaint/internal/l10n"
	"github.com/MimeLyc/cloudmaint/internal/trashbin"
	"github.com/MimeLyc/cloudmaint/internal/userfs"
	"github.com/MimeLyc/cloudmaint/pkg/file"
)

const (
	CheckTranslationCatalogsKey = "core.check-translation-catalogs"
	CleanupTrashOrphansKey      = "trashbin.cleanup-orphans"
)

// AppCatalogs lists apps and where they live.
type AppCatalogs interface {
	List() ([]string, error)
	AppPath(app string) (string, error)
}

// CheckTranslationCatalogs warns about catalogs whose strings are mostly in
// another language than the catalog's file name claims.
type CheckTranslationCatalogs struct {
	serverRoot string
	apps       AppCatalogs
	// minStrings is the number of detected strings below which a catalog
	// is not judged.
	minStrings int
}

func NewCheckTranslationCatalogs(serverRoot string, apps AppCatalogs) *CheckTranslationCatalogs {
	return &CheckTranslationCatalogs{serverRoot: serverRoot, apps: apps, minStrings: 5}
}

func (s *CheckTranslationCatalogs) Name() string {
	return "Check translation catalogs"
}

func (s *CheckTranslationCatalogs) Run(ctx context.Context, out Output) error {
	dirs := []string{
		filepath.Join(s.serverRoot, "core", "l10n"),
		filepath.Join(s.serverRoot, "lib", "l10n"),
	}
	appIDs, err := s.apps.List()
	if err != nil {
		return fmt.Errorf("list apps: %w", err)
	}
	for _, app := range appIDs {
		if dir, err := s.apps.AppPath(app); err == nil {
			dirs = append(dirs, filepath.Join(dir, "l10n"))
		}
	}

	type catalogFile struct {
		lang string
		path string
	}
	catalogs := make([]catalogFile, 0)
	for _, dir := range dirs {
		names, err := file.BaseNamesWithExt(dir, ".json")
		if err != nil {
			return fmt.Errorf("read %s: %w", dir, err)
		}
		for _, lang := range names {
			if strings.HasPrefix(lang, "l10n") {
				continue
			}
			catalogs = append(catalogs, catalogFile{lang: lang, path: filepath.Join(dir, lang+".json")})
		}
	}

	out.StartProgress(len(catalogs))
	mismatches := 0
	for _, c := range catalogs {
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, _ := filepath.Rel(s.serverRoot, c.path)
		catalog, err := l10n.LoadCatalog(c.lang, c.path)
		if err != nil {
			out.Warning(fmt.Sprintf("Cannot read %s: %v", rel, err))
			out.AdvanceProgress(1, rel)
			continue
		}
		detected, ok := s.dominantLanguage(catalog.Strings())
		expected, _, _ := strings.Cut(c.lang, "_")
		if ok && !strings.EqualFold(detected, expected) {
			mismatches++
			out.Warning(fmt.Sprintf("%s looks like %q, not %q", rel, detected, c.lang))
		}
		out.AdvanceProgress(1, rel)
	}
	out.FinishProgress()

	if mismatches == 0 {
		out.Info(fmt.Sprintf("Checked %d translation catalogs", len(catalogs)))
	}
	return nil
}

// dominantLanguage returns the ISO 639-1 code most strings are written in,
// when more than half of enough strings agree.
func (s *CheckTranslationCatalogs) dominantLanguage(texts []string) (string, bool) {
	counts := make(map[string]int)
	total := 0
	for _, text := range texts {
		code := whatlanggo.DetectLang(text).Iso6391()
		if code == "" {
			continue
		}
		counts[code]++
		total++
	}
	if total < s.minStrings {
		return "", false
	}

	var top string
	var topCount int
	for code, count := range counts {
		if count > topCount || (count == topCount && code < top) {
			top = code
			topCount = count
		}
	}
	return top, topCount*2 > total
}

// TrashUsers lists users that own trash items.
type TrashUsers interface {
	TrashUsers(ctx context.Context) ([]string, error)
}

type TrashOrphans interface {
	Orphans(ctx context.Context, scope trashbin.Scope) ([]trashbin.Item, error)
	Forget(ctx context.Context, items []trashbin.Item) error
}

type ScopeMounter interface {
	Setup(user string) (*userfs.Scope, error)
}

// CleanupTrashOrphans drops trash metadata whose file is gone from disk.
type CleanupTrashOrphans struct {
	users   TrashUsers
	trash   TrashOrphans
	mounter ScopeMounter
}

func NewCleanupTrashOrphans(users TrashUsers, trash TrashOrphans, mounter ScopeMounter) *CleanupTrashOrphans {
	return &CleanupTrashOrphans{users: users, trash: trash, mounter: mounter}
}

func (s *CleanupTrashOrphans) Name() string {
	return "Remove orphaned trash bin entries"
}

func (s *CleanupTrashOrphans) Run(ctx context.Context, out Output) error {
	uids, err := s.users.TrashUsers(ctx)
	if err != nil {
		return fmt.Errorf("list trash users: %w", err)
	}

	out.StartProgress(len(uids))
	removed := 0
	for _, uid := range uids {
		n, err := s.cleanup(ctx, uid)
		if err != nil {
			return err
		}
		removed += n
		out.AdvanceProgress(1, uid)
	}
	out.FinishProgress()
	out.Info(fmt.Sprintf("Removed %d orphaned trash bin entries", removed))
	return nil
}

func (s *CleanupTrashOrphans) cleanup(ctx context.Context, uid string) (int, error) {
	scope, err := s.mounter.Setup(uid)
	if err != nil {
		return 0, fmt.Errorf("setup filesystem of %s: %w", uid, err)
	}
	defer scope.Release()

	orphans, err := s.trash.Orphans(ctx, scope)
	if err != nil {
		return 0, fmt.Errorf("find orphans of %s: %w", uid, err)
	}
	if err := s.trash.Forget(ctx, orphans); err != nil {
		return 0, fmt.Errorf("forget orphans of %s: %w", uid, err)
	}
	return len(orphans), nil
}
