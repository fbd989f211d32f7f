package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/jlaffaye/ftp"

	"github.com/automationz/moddeployd/internal/config"
	"github.com/automationz/moddeployd/internal/exclude"
)

// ftpUploader streams trees to an FTP or FTPS server. Game hosts almost
// universally expose FTP, which is why it is the default mode.
type ftpUploader struct {
	profile config.Profile
	timeout time.Duration
	conn    *ftp.ServerConn
}

func newFTPUploader(profile config.Profile, timeout time.Duration) *ftpUploader {
	return &ftpUploader{profile: profile, timeout: timeout}
}

func (u *ftpUploader) Connect(ctx context.Context) error {
	addr := net.JoinHostPort(u.profile.Host, strconv.Itoa(u.profile.Port))

	opts := []ftp.DialOption{
		ftp.DialWithContext(ctx),
		ftp.DialWithTimeout(u.timeout),
	}
	if u.profile.TLS {
		opts = append(opts, ftp.DialWithExplicitTLS(&tls.Config{ServerName: u.profile.Host}))
	}

	conn, err := ftp.Dial(addr, opts...)
	if err != nil {
		return fmt.Errorf("%w: dial %s: %v", ErrConnect, addr, err)
	}
	if err := conn.Login(u.profile.Username, u.profile.Password); err != nil {
		_ = conn.Quit()
		return fmt.Errorf("%w: login as %s: %v", ErrConnect, u.profile.Username, err)
	}

	u.conn = conn
	return nil
}

func (u *ftpUploader) Close() error {
	if u.conn == nil {
		return nil
	}
	err := u.conn.Quit()
	u.conn = nil
	return err
}

func (u *ftpUploader) UploadTree(_ context.Context, localRoot, destRel string, excl *exclude.Set) (Stats, error) {
	destRoot := "/" + JoinRemote(CleanRemote(u.profile.Root), destRel)

	var stats Stats
	err := walkTree(localRoot, excl,
		func(rel string) error {
			u.ensureDir(JoinRemote(destRoot, rel))
			return nil
		},
		func(path, rel string, info os.FileInfo) error {
			f, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("%w: open %s: %v", ErrIO, rel, err)
			}
			target := JoinRemote(destRoot, rel)
			err = u.conn.Stor(target, f)
			_ = f.Close()
			if err != nil {
				return fmt.Errorf("%w: store %s: %v", ErrIO, target, err)
			}
			stats.Files++
			stats.Bytes += info.Size()
			return nil
		})
	if err != nil {
		return stats, err
	}
	return stats, nil
}

// ensureDir creates every segment of dir, ignoring errors from segments that
// already exist. FTP offers no portable "mkdir -p" or existence probe, so
// blind creation is the idempotent option.
func (u *ftpUploader) ensureDir(dir string) {
	cur := ""
	for _, part := range splitRemote(dir) {
		cur += "/" + part
		_ = u.conn.MakeDir(cur)
	}
}
