// Package download 批量下载书单里的文档，失败的 URL 记日志后跳过，不重试也不续传。
package download

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Report 一次批量下载的结果
type Report struct {
	Downloaded []string // 写入的本地路径
	Failed     []string // 失败的 URL
}

// ReadURLs 读取 URL 列表，一行一个，忽略空行和 # 注释
func ReadURLs(file string) ([]string, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, fmt.Errorf("open url file: %w", err)
	}
	defer f.Close()

	var urls []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read url file: %w", err)
	}
	return urls, nil
}

// FileName 取 URL 路径的最后一段作为文件名
func FileName(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" || name == "" {
		return "", errors.New("url has no file name")
	}
	return name, nil
}

// Run 依次下载 urlFile 里的每个 URL 到 dir。
// 只有读不到 URL 文件或建不了目录才返回错误，单个 URL 的失败记在 Report 里。
func Run(ctx context.Context, client *http.Client, urlFile, dir string) (*Report, error) {
	urls, err := ReadURLs(urlFile)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create download dir: %w", err)
	}
	if client == nil {
		client = http.DefaultClient
	}

	report := &Report{}
	for _, u := range urls {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		dst, err := fetch(ctx, client, u, dir)
		if err != nil {
			slog.Error("download failed", "url", u, "error", err)
			report.Failed = append(report.Failed, u)
			continue
		}
		slog.Info("downloaded", "url", u, "file", dst)
		report.Downloaded = append(report.Downloaded, dst)
	}

	slog.Info("download finished", "downloaded", len(report.Downloaded), "failed", len(report.Failed))
	return report, nil
}

func fetch(ctx context.Context, client *http.Client, rawURL, dir string) (string, error) {
	name, err := FileName(rawURL)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("unexpected status %s", resp.Status)
	}

	dst := filepath.Join(dir, name)
	f, err := os.Create(dst)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(dst)
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return dst, nil
}
