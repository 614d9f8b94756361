package predict_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestPredict(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Predict Suite")
}
