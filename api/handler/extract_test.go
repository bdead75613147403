package handler

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/use-agent/urlgrab/models"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		res  models.Result
		want int
	}{
		{models.PageResult{}, http.StatusOK},
		{models.TextResult{Text: "x"}, http.StatusOK},
		{models.Failure{Code: models.ErrCodeInvalidInput}, http.StatusBadRequest},
		{models.Failure{Code: models.ErrCodeTimeout}, http.StatusGatewayTimeout},
		{models.Failure{Code: models.ErrCodeSession}, http.StatusBadGateway},
		{models.Failure{Code: models.ErrCodeNavigation}, http.StatusBadGateway},
		{models.Failure{Code: models.ErrCodeBrowserCrash}, http.StatusBadGateway},
		{models.Failure{Code: models.ErrCodeLLMAuthFailure}, http.StatusBadGateway},
		{models.Failure{Code: models.ErrCodeLLMRateLimited}, http.StatusBadGateway},
		{models.Failure{Code: models.ErrCodeAgent}, http.StatusInternalServerError},
		{models.Failure{Code: models.ErrCodeInternal}, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusFor(tt.res), "%#v", tt.res)
	}
}
