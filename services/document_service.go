package services

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"time"

	"github.com/anjiri1684/tuition_coupons/models"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed templates/coupon.html
var templateFS embed.FS

var couponTemplate = template.Must(template.ParseFS(templateFS, "templates/coupon.html"))

// Renderer turns coupon HTML into a PDF.
type Renderer interface {
	Render(ctx context.Context, html string) ([]byte, error)
}

// DocumentStore keeps rendered PDFs and returns a public URL for them.
type DocumentStore interface {
	Upload(ctx context.Context, coupon *models.Coupon, pdf []byte) (string, error)
}

type Document struct {
	URL string
	PDF []byte
}

type DocumentService struct {
	db       *gorm.DB
	log      *zap.Logger
	coupons  *CouponService
	renderer Renderer
	store    DocumentStore
}

// NewDocumentService wires rendering for coupon documents. store may be nil,
// in which case every request renders a fresh PDF.
func NewDocumentService(db *gorm.DB, log *zap.Logger, coupons *CouponService, renderer Renderer, store DocumentStore) *DocumentService {
	return &DocumentService{db: db, log: log, coupons: coupons, renderer: renderer, store: store}
}

// Document returns the stored URL of the coupon's PDF, or renders one. Rendering
// runs outside any transaction.
func (s *DocumentService) Document(ctx context.Context, p Principal, couponID uuid.UUID) (*Document, error) {
	coupon, err := s.coupons.Get(ctx, p, couponID)
	if err != nil {
		return nil, err
	}
	if coupon.DocumentURL != nil && *coupon.DocumentURL != "" {
		return &Document{URL: *coupon.DocumentURL}, nil
	}
	if s.renderer == nil {
		return nil, fmt.Errorf("%w: document rendering is not configured", ErrTransient)
	}

	html, err := RenderCouponHTML(coupon)
	if err != nil {
		return nil, err
	}
	pdf, err := s.renderer.Render(ctx, html)
	if err != nil {
		s.log.Error("coupon render failed", zap.String("coupon_id", coupon.ID.String()), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	if s.store == nil {
		return &Document{PDF: pdf}, nil
	}

	url, err := s.store.Upload(ctx, coupon, pdf)
	if err != nil {
		s.log.Warn("coupon document upload failed", zap.String("coupon_id", coupon.ID.String()), zap.Error(err))
		return &Document{PDF: pdf}, nil
	}
	// A transition clears the URL; a render that raced one must not restore it.
	err = s.db.WithContext(ctx).Model(&models.Coupon{}).
		Where("id = ? AND status IN ? AND document_url IS NULL", coupon.ID, storedStatuses(coupon.Status)).
		Update("document_url", url).Error
	if err != nil {
		s.log.Warn("storing document url failed", zap.String("coupon_id", coupon.ID.String()), zap.Error(err))
	}
	return &Document{URL: url, PDF: pdf}, nil
}

// storedStatuses lists the persisted statuses a rendered status can stand
// for. Overdue may still be stored as active until the sweep runs.
func storedStatuses(rendered models.CouponStatus) []models.CouponStatus {
	if rendered == models.CouponOverdue {
		return []models.CouponStatus{models.CouponActive, models.CouponOverdue}
	}
	return []models.CouponStatus{rendered}
}

type couponLine struct {
	Position int
	Period   string
	DueDate  string
	Amount   string
}

func RenderCouponHTML(coupon *models.Coupon) (string, error) {
	data := struct {
		Number      string
		StudentName string
		FileNumber  string
		Gateway     string
		IssuedAt    string
		DueDate     string
		Status      string
		Total       string
		Lines       []couponLine
	}{
		Number:   coupon.Number,
		Gateway:  coupon.Gateway.Name,
		IssuedAt: coupon.CreatedAt.Format("January 2, 2006"),
		DueDate:  coupon.DueDate.Format("January 2, 2006"),
		Status:   string(coupon.Status),
		Total:    coupon.AmountTotal.StringFixed(2),
	}
	if coupon.Student != nil {
		data.StudentName = coupon.Student.FullName
		if coupon.Student.FileNumber != nil {
			data.FileNumber = *coupon.Student.FileNumber
		}
	}
	for _, link := range coupon.Installments {
		data.Lines = append(data.Lines, couponLine{
			Position: link.Position + 1,
			Period:   link.Installment.Period,
			DueDate:  link.Installment.DueDate.Format("2006-01-02"),
			Amount:   link.Installment.Amount.StringFixed(2),
		})
	}

	var rendered bytes.Buffer
	if err := couponTemplate.Execute(&rendered, data); err != nil {
		return "", err
	}
	return rendered.String(), nil
}

// ChromeRenderer prints HTML to PDF with a headless Chrome.
type ChromeRenderer struct {
	Timeout time.Duration
}

func (r ChromeRenderer) Render(ctx context.Context, htmlContent string) ([]byte, error) {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	ctx, cancelChrome := chromedp.NewContext(ctx)
	defer cancelChrome()

	var pdfBuffer []byte
	err := chromedp.Run(ctx,
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			frameTree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(frameTree.Frame.ID, htmlContent).Do(ctx)
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			pdf, _, err := page.PrintToPDF().WithPrintBackground(true).Do(ctx)
			if err != nil {
				return err
			}
			pdfBuffer = pdf
			return nil
		}),
	)
	if err != nil {
		return nil, err
	}
	return pdfBuffer, nil
}

type CloudinaryStore struct {
	cld    *cloudinary.Cloudinary
	folder string
}

func NewCloudinaryStore(cloudinaryURL string) (*CloudinaryStore, error) {
	cld, err := cloudinary.NewFromURL(cloudinaryURL)
	if err != nil {
		return nil, err
	}
	return &CloudinaryStore{cld: cld, folder: "tuition_coupons"}, nil
}

func (s *CloudinaryStore) Upload(ctx context.Context, coupon *models.Coupon, pdf []byte) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	result, err := s.cld.Upload.Upload(ctx, bytes.NewReader(pdf), uploader.UploadParams{
		PublicID:     fmt.Sprintf("coupons/%s_%s", coupon.Number, coupon.ID),
		Folder:       s.folder,
		ResourceType: "raw",
	})
	if err != nil {
		return "", err
	}
	return result.SecureURL, nil
}
