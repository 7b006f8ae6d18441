// Package images stores uploaded author and book images.
package images

import (
	"bytes"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"math"
	"mime/multipart"
	"os"
	"path"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/pulpfiction/pulpfiction/pkg/config"
	"github.com/pulpfiction/pulpfiction/pkg/errcodes"
	"github.com/spf13/afero"
	"golang.org/x/image/draw"
)

const (
	KindAuthors = "authors"
	KindBooks   = "books"
)

var formats = map[string]imaging.Format{
	"image/jpeg": imaging.JPEG,
	"image/png":  imaging.PNG,
	"image/gif":  imaging.GIF,
}

var contentTypes = map[string]string{
	".jpg": "image/jpeg",
	".png": "image/png",
	".gif": "image/gif",
}

// Store writes images to an afero filesystem under <kind>/<uuid><ext>.
type Store struct {
	fs           afero.Fs
	maxBytes     int64
	maxDimension int
}

func NewStore(fs afero.Fs, maxBytes int64, maxDimension int) *Store {
	return &Store{fs: fs, maxBytes: maxBytes, maxDimension: maxDimension}
}

// NewFromConfig returns a Store rooted at cfg.ImageDir on the OS filesystem.
func NewFromConfig(cfg *config.Config) (*Store, error) {
	osFs := afero.NewOsFs()
	if err := osFs.MkdirAll(cfg.ImageDir, 0o755); err != nil {
		return nil, errors.WithStack(err)
	}
	fs := afero.NewBasePathFs(osFs, cfg.ImageDir)
	return NewStore(fs, cfg.ImageMaxBytes, cfg.ImageMaxDimension), nil
}

// Save validates r as a JPEG, PNG or GIF, shrinks it to fit the maximum
// dimension and stores it. The returned filename is relative to the store.
func (s *Store) Save(kind string, r io.Reader) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r, s.maxBytes+1))
	if err != nil {
		return "", errors.WithStack(err)
	}
	if int64(len(data)) > s.maxBytes {
		return "", errcodes.PayloadTooLarge("Image must be smaller than " + humanSize(s.maxBytes) + ".")
	}
	if len(data) == 0 {
		return "", errcodes.FieldValidationError("image", `"image" can't be empty`)
	}

	mtype := mimetype.Detect(data)
	format, ok := formats[mtype.String()]
	if !ok {
		return "", errcodes.FieldValidationError("image", `"image" must be a JPEG, PNG or GIF image`)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "", errcodes.FieldValidationError("image", `"image" could not be decoded`)
	}

	if s.maxDimension > 0 && (cfg.Width > s.maxDimension || cfg.Height > s.maxDimension) {
		data, err = s.shrink(data, format)
		if err != nil {
			return "", err
		}
	}

	filename := path.Join(kind, uuid.NewString()+mtype.Extension())
	if err := s.fs.MkdirAll(kind, 0o755); err != nil {
		return "", errors.WithStack(err)
	}
	if err := afero.WriteFile(s.fs, filename, data, 0o644); err != nil {
		return "", errors.WithStack(err)
	}
	return filename, nil
}

// SaveUpload saves an uploaded multipart file.
func (s *Store) SaveUpload(kind string, fh *multipart.FileHeader) (string, error) {
	f, err := fh.Open()
	if err != nil {
		return "", errors.WithStack(err)
	}
	defer f.Close()
	return s.Save(kind, f)
}

func (s *Store) shrink(data []byte, format imaging.Format) ([]byte, error) {
	src, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, errcodes.FieldValidationError("image", `"image" could not be decoded`)
	}

	srcBounds := src.Bounds()
	w, h := fitDimensions(srcBounds.Dx(), srcBounds.Dy(), s.maxDimension)
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.BiLinear.Scale(dst, dst.Bounds(), src, srcBounds, draw.Over, nil)

	buf := new(bytes.Buffer)
	if err := imaging.Encode(buf, dst, format, imaging.JPEGQuality(90)); err != nil {
		return nil, errors.WithStack(err)
	}
	return buf.Bytes(), nil
}

// fitDimensions scales w x h down to fit within limit x limit, keeping the
// aspect ratio. Neither side drops below one pixel.
func fitDimensions(w, h, limit int) (int, int) {
	if w <= limit && h <= limit {
		return w, h
	}
	ratio := math.Min(float64(limit)/float64(w), float64(limit)/float64(h))
	fw := int(math.Round(float64(w) * ratio))
	fh := int(math.Round(float64(h) * ratio))
	if fw < 1 {
		fw = 1
	}
	if fh < 1 {
		fh = 1
	}
	return fw, fh
}

// Open returns the stored image along with its content type.
func (s *Store) Open(filename string) (afero.File, string, error) {
	if !validName(filename) {
		return nil, "", errcodes.NotFound("Image")
	}
	f, err := s.fs.Open(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", errcodes.NotFound("Image")
		}
		return nil, "", errors.WithStack(err)
	}
	contentType, ok := contentTypes[path.Ext(filename)]
	if !ok {
		contentType = "application/octet-stream"
	}
	return f, contentType, nil
}

// Delete removes a stored image. Missing files are ignored.
func (s *Store) Delete(filename string) error {
	if !validName(filename) {
		return nil
	}
	err := s.fs.Remove(filename)
	if err != nil && !os.IsNotExist(err) {
		return errors.WithStack(err)
	}
	return nil
}

// validName rejects anything that isn't a "<kind>/<file>" path produced by
// Save.
func validName(filename string) bool {
	if filename == "" || strings.Contains(filename, "..") || strings.HasPrefix(filename, "/") {
		return false
	}
	return path.Clean(filename) == filename && strings.Count(filename, "/") == 1
}

func humanSize(n int64) string {
	const mb = 1024 * 1024
	if n >= mb && n%mb == 0 {
		return strconv.FormatInt(n/mb, 10) + "MB"
	}
	return strconv.FormatInt(n, 10) + " bytes"
}
