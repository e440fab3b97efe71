package cv

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"code.sajari.com/docconv"
	"github.com/google/uuid"

	"recruiting-ats/internal/storage"
)

// MaxFileSize is the largest document accepted for upload.
const MaxFileSize = 10 << 20

var (
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrTooLarge        = errors.New("file too large")
)

var supportedTypes = map[string]bool{
	".pdf": true, ".docx": true, ".doc": true, ".rtf": true, ".odt": true, ".txt": true,
}

func Supported(filename string) bool {
	return supportedTypes[strings.ToLower(filepath.Ext(filename))]
}

type Parser struct {
	uploadsDir string
}

// ParsedDocument is a stored candidate document with its extracted text.
type ParsedDocument struct {
	Document storage.Document
	Text     string
	Profile  Extraction
}

func NewParser(uploadsDir string) *Parser {
	return &Parser{uploadsDir: uploadsDir}
}

// ParseFile stores the upload under uploadsDir/candidateID and extracts its text: docconv for
// office and PDF formats, a plain read for .txt.
func (p *Parser) ParseFile(candidateID, filename string, reader io.Reader) (*ParsedDocument, error) {
	name := filepath.Base(strings.ReplaceAll(filename, "\\", "/"))
	fileType := strings.ToLower(filepath.Ext(name))
	if !supportedTypes[fileType] {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedType, fileType)
	}

	dir := filepath.Join(p.uploadsDir, filepath.Base(candidateID))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create uploads dir: %w", err)
	}
	filePath := filepath.Join(dir, uuid.New().String()[:8]+"_"+name)

	size, err := save(filePath, reader)
	if err != nil {
		os.Remove(filePath)
		return nil, err
	}

	var text string
	switch fileType {
	case ".txt":
		content, err := os.ReadFile(filePath)
		if err != nil {
			os.Remove(filePath)
			return nil, fmt.Errorf("failed to read text file: %w", err)
		}
		text = string(content)
	default:
		res, err := docconv.ConvertPath(filePath)
		if err != nil {
			os.Remove(filePath)
			return nil, fmt.Errorf("failed to parse document: %w", err)
		}
		text = res.Body
	}
	text = strings.TrimSpace(text)

	return &ParsedDocument{
		Document: storage.Document{
			Name:       name,
			FileType:   strings.TrimPrefix(fileType, "."),
			Path:       filePath,
			Size:       size,
			TextLength: len(text),
			UploadedAt: time.Now().UTC(),
		},
		Text:    text,
		Profile: Extract(text),
	}, nil
}

func save(path string, reader io.Reader) (int64, error) {
	file, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	size, err := io.Copy(file, io.LimitReader(reader, MaxFileSize+1))
	if err != nil {
		return 0, fmt.Errorf("failed to save file: %w", err)
	}
	if size > MaxFileSize {
		return 0, fmt.Errorf("%w (max %d MB)", ErrTooLarge, MaxFileSize>>20)
	}
	return size, nil
}
