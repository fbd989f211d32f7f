package transport

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"github.com/automationz/moddeployd/internal/config"
	"github.com/automationz/moddeployd/internal/exclude"
)

// sftpUploader streams trees over an SSH session. Host key verification is
// deliberately skipped: the target is a game server the operator controls,
// reached with password auth from a config file.
type sftpUploader struct {
	profile config.Profile
	timeout time.Duration

	ssh    *ssh.Client
	client *sftp.Client
}

func newSFTPUploader(profile config.Profile, timeout time.Duration) *sftpUploader {
	return &sftpUploader{profile: profile, timeout: timeout}
}

func (u *sftpUploader) Connect(_ context.Context) error {
	addr := net.JoinHostPort(u.profile.Host, strconv.Itoa(u.profile.Port))

	sshCfg := &ssh.ClientConfig{
		User:            u.profile.Username,
		Auth:            []ssh.AuthMethod{ssh.Password(u.profile.Password)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         u.timeout,
	}

	conn, err := ssh.Dial("tcp", addr, sshCfg)
	if err != nil {
		return fmt.Errorf("%w: ssh dial %s: %v", ErrConnect, addr, err)
	}
	client, err := sftp.NewClient(conn)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("%w: sftp session on %s: %v", ErrConnect, addr, err)
	}

	u.ssh = conn
	u.client = client
	return nil
}

func (u *sftpUploader) Close() error {
	var err error
	if u.client != nil {
		err = u.client.Close()
		u.client = nil
	}
	if u.ssh != nil {
		if cerr := u.ssh.Close(); err == nil {
			err = cerr
		}
		u.ssh = nil
	}
	return err
}

func (u *sftpUploader) UploadTree(_ context.Context, localRoot, destRel string, excl *exclude.Set) (Stats, error) {
	destRoot := "/" + JoinRemote(CleanRemote(u.profile.Root), destRel)

	var stats Stats
	err := walkTree(localRoot, excl,
		func(rel string) error {
			dir := JoinRemote(destRoot, rel)
			if err := u.client.MkdirAll(dir); err != nil {
				return fmt.Errorf("%w: mkdir %s: %v", ErrIO, dir, err)
			}
			return nil
		},
		func(path, rel string, info os.FileInfo) error {
			src, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("%w: open %s: %v", ErrIO, rel, err)
			}
			defer src.Close()

			target := JoinRemote(destRoot, rel)
			dst, err := u.client.Create(target)
			if err != nil {
				return fmt.Errorf("%w: create %s: %v", ErrIO, target, err)
			}
			if _, err := io.Copy(dst, src); err != nil {
				_ = dst.Close()
				return fmt.Errorf("%w: write %s: %v", ErrIO, target, err)
			}
			if err := dst.Close(); err != nil {
				return fmt.Errorf("%w: close %s: %v", ErrIO, target, err)
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
