package export

import (
	"context"
	"encoding/base64"
	"fmt"
	"os/exec"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

var chromeBinaries = []string{"chromium-browser", "chromium", "google-chrome", "google-chrome-stable"}

// ChromePDF prints pages with headless Chrome.
type ChromePDF struct {
	ExecPath string
	Timeout  time.Duration
}

// NewChromePDF locates a Chrome binary on PATH. It returns
// ErrPDFDependencyMissing when none is installed.
func NewChromePDF(timeout time.Duration) (*ChromePDF, error) {
	for _, name := range chromeBinaries {
		if path, err := exec.LookPath(name); err == nil {
			if timeout <= 0 {
				timeout = 30 * time.Second
			}
			return &ChromePDF{ExecPath: path, Timeout: timeout}, nil
		}
	}
	return nil, fmt.Errorf("%w: chromium not installed", ErrPDFDependencyMissing)
}

// RenderPDF converts HTML to a Letter-sized PDF.
func (c *ChromePDF) RenderPDF(ctx context.Context, html string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.ExecPath(c.ExecPath),
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)

	allocCtx, cancel := chromedp.NewExecAllocator(ctx, opts...)
	defer cancel()

	taskCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	dataURL := "data:text/html;charset=utf-8;base64," + base64.StdEncoding.EncodeToString([]byte(html))

	var pdfData []byte
	err := chromedp.Run(taskCtx,
		chromedp.Navigate(dataURL),
		chromedp.WaitReady("body"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			pdfData, _, err = page.PrintToPDF().
				WithPrintBackground(true).
				WithPaperWidth(8.5).
				WithPaperHeight(11.0).
				WithPreferCSSPageSize(true).
				Do(ctx)
			return err
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("chrome pdf generation failed: %w", err)
	}
	return pdfData, nil
}
