package utils

import (
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/anjiri1684/tuition_coupons/models"
	"gorm.io/gorm"
)

const couponNumberLength = 10
const digitBytes = "0123456789"
const maxNumberAttempts = 20

var (
	seededRand = rand.New(rand.NewSource(time.Now().UnixNano()))
	randMu     sync.Mutex
)

// GenerateUniqueCouponNumber returns a numeric code printed on the coupon and
// keyed by gateways, unused by any existing coupon.
func GenerateUniqueCouponNumber(tx *gorm.DB) (string, error) {
	for attempt := 0; attempt < maxNumberAttempts; attempt++ {
		code := randomDigits(couponNumberLength)

		var count int64
		if err := tx.Model(&models.Coupon{}).Where("number = ?", code).Count(&count).Error; err != nil {
			return "", err
		}
		if count == 0 {
			return code, nil
		}
	}
	return "", errors.New("could not allocate a unique coupon number")
}

func randomDigits(n int) string {
	randMu.Lock()
	defer randMu.Unlock()

	b := make([]byte, n)
	b[0] = digitBytes[1+seededRand.Intn(len(digitBytes)-1)]
	for i := 1; i < n; i++ {
		b[i] = digitBytes[seededRand.Intn(len(digitBytes))]
	}
	return string(b)
}
