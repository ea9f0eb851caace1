package serverutils

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http/httptest"
	"testing"
	"time"

	"cluster-intelligence-be/internal/pkg/apperror"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{apperror.NotFound("cluster x"), fiber.StatusNotFound},
		{fmt.Errorf("merge: %w", apperror.ErrInsufficientData), fiber.StatusUnprocessableEntity},
		{apperror.Conflict("dup"), fiber.StatusConflict},
		{apperror.InvalidArgument("bad"), fiber.StatusBadRequest},
		{apperror.External("scroll", errors.New("timeout")), fiber.StatusBadGateway},
		{apperror.ErrLocked, fiber.StatusLocked},
		{&ValidationError{Fields: map[string]string{"Name": "required"}}, fiber.StatusBadRequest},
		{fiber.NewError(fiber.StatusUnauthorized, "nope"), fiber.StatusUnauthorized},
		{apperror.Persistence("create", errors.New("disk full")), fiber.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusFor(tt.err), tt.err.Error())
	}
}

func TestValidateRequest(t *testing.T) {
	type request struct {
		Name string `validate:"required,max=5"`
	}
	assert.NoError(t, ValidateRequest(request{Name: "abc"}))

	err := ValidateRequest(request{Name: "too long"})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "max", ve.Fields["Name"])
}

func TestErrorHandlerMiddleware_HidesInternalErrors(t *testing.T) {
	app := fiber.New()
	app.Use(ErrorHandlerMiddleware())
	app.Get("/missing", func(ctx *fiber.Ctx) error { return apperror.NotFound("cluster abc") })
	app.Get("/broken", func(ctx *fiber.Ctx) error { return apperror.Persistence("write", errors.New("pq: secret detail")) })

	resp, err := app.Test(httptest.NewRequest("GET", "/missing", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)
	var body BaseResponse[any]
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.False(t, body.Success)
	assert.Equal(t, "cluster abc: not found", body.Message)

	resp, err = app.Test(httptest.NewRequest("GET", "/broken", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, 500, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "Internal server error", body.Message)
}

func TestJwtMiddleware(t *testing.T) {
	const secret = "test-secret"
	userId := uuid.New()

	app := fiber.New()
	app.Get("/me", JwtMiddleware(secret), func(ctx *fiber.Ctx) error {
		id, err := UserID(ctx)
		if err != nil {
			return err
		}
		return ctx.SendString(id.String())
	})

	sign := func(claims jwt.MapClaims, key string) string {
		s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
		require.NoError(t, err)
		return s
	}
	call := func(header string) int {
		req := httptest.NewRequest("GET", "/me", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		return resp.StatusCode
	}

	valid := sign(jwt.MapClaims{"user_id": userId.String(), "exp": time.Now().Add(time.Hour).Unix()}, secret)
	assert.Equal(t, 200, call("Bearer "+valid))
	assert.Equal(t, 401, call(""))
	assert.Equal(t, 401, call("Bearer "+sign(jwt.MapClaims{"user_id": userId.String()}, "other")))
	assert.Equal(t, 401, call("Bearer "+sign(jwt.MapClaims{"user_id": "not-a-uuid"}, secret)))
	assert.Equal(t, 401, call("Bearer "+sign(jwt.MapClaims{"user_id": userId.String(), "exp": time.Now().Add(-time.Hour).Unix()}, secret)))
}
