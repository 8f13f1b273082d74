// Package dataset resolves a dvc-style tracked data reference to a local file,
// fetching it from the data remote when the working copy is missing or stale.
//
// A tracked file data/raw/train.csv is described by data/raw/train.csv.dvc:
//
//	outs:
//	- md5: 1b2c...
//	  size: 612345
//	  path: train.csv
//
// and stored on the remote under its content address files/md5/1b/2c....
package dataset

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"taxi-ct/internal/remote"
	"taxi-ct/internal/trips"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

const sidecarExt = ".dvc"

var (
	// ErrUnresolved means the path has no usable tracked reference.
	ErrUnresolved = errors.New("dataset reference unresolved")
	// ErrFetch means the referenced content could not be made available locally.
	ErrFetch = errors.New("dataset fetch failed")
)

// Out is one tracked output of a sidecar file.
type Out struct {
	MD5  string `yaml:"md5"`
	Size int64  `yaml:"size"`
	Path string `yaml:"path"`
}

type sidecar struct {
	Outs []Out `yaml:"outs"`
}

// Location is a resolved tracked reference.
type Location struct {
	LocalPath string
	ObjectKey string
	MD5       string
	Size      int64
}

func SidecarPath(path string) string {
	return path + sidecarExt
}

// ObjectKey is the remote content address of an md5 digest.
func ObjectKey(md5sum string) string {
	return fmt.Sprintf("files/md5/%s/%s", md5sum[:2], md5sum[2:])
}

// Provider makes tracked datasets available locally. A nil remote means only
// the working copy can be used.
type Provider struct {
	remote remote.ObjectStorage
}

func NewProvider(r remote.ObjectStorage) *Provider {
	return &Provider{remote: r}
}

// Resolve reads the sidecar of path.
func (p *Provider) Resolve(ctx context.Context, path string) (Location, error) {
	data, err := os.ReadFile(SidecarPath(path))
	if err != nil {
		return Location{}, fmt.Errorf("%w: %s: %v", ErrUnresolved, path, err)
	}

	var ref sidecar
	if err := yaml.Unmarshal(data, &ref); err != nil {
		return Location{}, fmt.Errorf("%w: %s: malformed %s: %v", ErrUnresolved, path, sidecarExt, err)
	}
	if len(ref.Outs) != 1 {
		return Location{}, fmt.Errorf("%w: %s: expected one output, got %d", ErrUnresolved, path, len(ref.Outs))
	}

	out := ref.Outs[0]
	out.MD5 = strings.ToLower(out.MD5)
	if !validMD5(out.MD5) {
		return Location{}, fmt.Errorf("%w: %s: invalid md5 %q", ErrUnresolved, path, out.MD5)
	}

	return Location{
		LocalPath: filepath.Join(filepath.Dir(path), filepath.FromSlash(out.Path)),
		ObjectKey: ObjectKey(out.MD5),
		MD5:       out.MD5,
		Size:      out.Size,
	}, nil
}

// Fetch resolves path and makes sure the working copy matches the reference,
// downloading it from the remote if needed.
func (p *Provider) Fetch(ctx context.Context, path string) (Location, error) {
	loc, err := p.Resolve(ctx, path)
	if err != nil {
		return Location{}, err
	}

	sum, _, err := Checksum(loc.LocalPath)
	switch {
	case err == nil && sum == loc.MD5:
		log.Debug().Str("path", loc.LocalPath).Msg("Dataset working copy is up to date")
		return loc, nil
	case err == nil:
		log.Warn().Str("path", loc.LocalPath).Str("want", loc.MD5).Str("got", sum).Msg("Dataset working copy is stale")
	case errors.Is(err, os.ErrNotExist):
		log.Info().Str("path", loc.LocalPath).Msg("Dataset working copy missing")
	default:
		return Location{}, fmt.Errorf("%w: %s: %v", ErrFetch, loc.LocalPath, err)
	}

	if p.remote == nil {
		return Location{}, fmt.Errorf("%w: %s is not available locally and no remote is configured", ErrFetch, loc.LocalPath)
	}

	log.Info().Str("object", loc.ObjectKey).Msg("Fetching dataset from remote")
	if err := p.remote.Download(ctx, loc.ObjectKey, loc.LocalPath); err != nil {
		return Location{}, fmt.Errorf("%w: %s: %w", ErrFetch, loc.ObjectKey, err)
	}

	sum, _, err = Checksum(loc.LocalPath)
	if err != nil {
		return Location{}, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	if sum != loc.MD5 {
		return Location{}, fmt.Errorf("%w: %s: checksum mismatch after download (want %s, got %s)", ErrFetch, loc.ObjectKey, loc.MD5, sum)
	}
	return loc, nil
}

// Load fetches path and reads it as a trip table.
func (p *Provider) Load(ctx context.Context, path string) ([]trips.Record, error) {
	loc, err := p.Fetch(ctx, path)
	if err != nil {
		return nil, err
	}

	records, err := trips.ReadCSV(loc.LocalPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	log.Info().Str("path", loc.LocalPath).Int("rows", len(records)).Str("md5", loc.MD5).Msg("Dataset loaded")
	return records, nil
}

// Push uploads the working copy of path to the remote unless the object is
// already there.
func (p *Provider) Push(ctx context.Context, path string) error {
	if p.remote == nil {
		return errors.New("no data remote configured")
	}

	loc, err := p.Resolve(ctx, path)
	if err != nil {
		return err
	}

	sum, _, err := Checksum(loc.LocalPath)
	if err != nil {
		return fmt.Errorf("push %s: %w", loc.LocalPath, err)
	}
	if sum != loc.MD5 {
		return fmt.Errorf("push %s: working copy changed since it was tracked, track it again", loc.LocalPath)
	}

	exists, err := p.remote.Exists(ctx, loc.ObjectKey)
	if err != nil {
		return fmt.Errorf("push %s: %w", loc.LocalPath, err)
	}
	if exists {
		log.Info().Str("object", loc.ObjectKey).Msg("Dataset already on remote")
		return nil
	}

	if err := p.remote.Upload(ctx, loc.LocalPath, loc.ObjectKey); err != nil {
		return fmt.Errorf("push %s: %w", loc.LocalPath, err)
	}
	log.Info().Str("object", loc.ObjectKey).Int64("bytes", loc.Size).Msg("Dataset pushed")
	return nil
}

// Track writes the sidecar for path, recording its current content.
func Track(path string) (Location, error) {
	sum, size, err := Checksum(path)
	if err != nil {
		return Location{}, fmt.Errorf("track %s: %w", path, err)
	}

	data, err := yaml.Marshal(sidecar{Outs: []Out{{MD5: sum, Size: size, Path: filepath.Base(path)}}})
	if err != nil {
		return Location{}, fmt.Errorf("track %s: %w", path, err)
	}
	if err := os.WriteFile(SidecarPath(path), data, 0o644); err != nil {
		return Location{}, fmt.Errorf("track %s: %w", path, err)
	}

	return Location{LocalPath: path, ObjectKey: ObjectKey(sum), MD5: sum, Size: size}, nil
}

// Checksum returns the hex md5 digest and size of a file.
func Checksum(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	h := md5.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

func validMD5(s string) bool {
	if len(s) != 32 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
