package tests

import (
    "bufio"
    "bytes"
    "fmt"
    "os"
    "path/filepath"
    "sync"

    "github.com/testcontainers/testcontainers-go"
)

const containerLogsDir = "containerlogs"

// containerLogs keeps a container's output in <dir>/<container>.log, one line
// per entry prefixed with the stream it was written to.
type containerLogs struct {
    mu     sync.Mutex
    file   *os.File
    writer *bufio.Writer
    err    error
}

var _ testcontainers.LogConsumer = (*containerLogs)(nil)

func newContainerLogs(dir, containerName string) (*containerLogs, error) {
    err := os.MkdirAll(dir, 0o755)
    if err != nil {
        return nil, fmt.Errorf("failed creating container logs dir: %w", err)
    }
    file, err := os.Create(filepath.Join(dir, containerName+".log"))
    if err != nil {
        return nil, fmt.Errorf("failed creating %s container log: %w", containerName, err)
    }
    return &containerLogs{
        file:   file,
        writer: bufio.NewWriter(file),
    }, nil
}

func (c *containerLogs) Accept(log testcontainers.Log) {
    c.mu.Lock()
    defer c.mu.Unlock()
    if c.err != nil {
        return
    }
    for _, line := range bytes.Split(bytes.TrimRight(log.Content, "\r\n"), []byte("\n")) {
        _, c.err = fmt.Fprintf(c.writer, "%s %s\n", log.LogType, line)
        if c.err != nil {
            return
        }
    }
    c.err = c.writer.Flush()
}

// Close flushes and closes the log file, reporting the first write error seen.
func (c *containerLogs) Close() error {
    c.mu.Lock()
    defer c.mu.Unlock()
    if c.err == nil {
        c.err = c.writer.Flush()
    }
    closeErr := c.file.Close()
    if c.err != nil {
        return fmt.Errorf("failed writing container log: %w", c.err)
    }
    return closeErr
}
