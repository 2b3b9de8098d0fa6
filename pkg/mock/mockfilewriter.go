package mock

import (
	"bytes"
	"os"

	"aaronromeo.com/mailtally/pkg/utils"
)

type MockWriter struct {
	Buffer *bytes.Buffer
	Err    error
}

func (m MockWriter) Write(p []byte) (int, error) {
	if m.Err != nil {
		return 0, m.Err
	}
	return m.Buffer.Write(p)
}

func (m MockWriter) Flush() error {
	return m.Err
}

// MockFileManager keeps every created or written file in memory.
type MockFileManager struct {
	Err     error
	ReadErr error
	Writers map[string]MockWriter
	Mkdirs  map[string]os.FileMode
	Closed  int
}

func NewMockFileManager() *MockFileManager {
	return &MockFileManager{
		Writers: map[string]MockWriter{},
		Mkdirs:  map[string]os.FileMode{},
	}
}

func (m *MockFileManager) Create(name string) (utils.Writer, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	writer := MockWriter{Buffer: new(bytes.Buffer)}
	m.Writers[name] = writer
	return writer, nil
}

func (m *MockFileManager) Close() error {
	m.Closed++
	return m.Err
}

func (m *MockFileManager) MkdirAll(path string, perm os.FileMode) error {
	m.Mkdirs[path] = perm
	return m.Err
}

func (m *MockFileManager) ReadFile(filename string) ([]byte, error) {
	if m.ReadErr != nil {
		return nil, m.ReadErr
	}
	writer, ok := m.Writers[filename]
	if !ok {
		return nil, os.ErrNotExist
	}
	return writer.Buffer.Bytes(), nil
}

func (m *MockFileManager) WriteFile(filename string, data []byte, perm os.FileMode) error {
	if m.Err != nil {
		return m.Err
	}
	m.Writers[filename] = MockWriter{Buffer: bytes.NewBuffer(data)}
	return nil
}
