//go:build !unix

package identity

import (
	"errors"
	"os"
)

// fileLock 以独占创建的锁文件实现；进程异常退出会留下过期锁文件，
// 此时后续进程回退为随机 ID
type fileLock struct {
	path string
}

func acquireLock(path string) (*fileLock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, ErrLocked
		}
		return nil, err
	}
	f.Close()
	return &fileLock{path: path}, nil
}

func (l *fileLock) release() error {
	return os.Remove(l.path)
}
