package utils_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/bondoverhobbies/internal/utils"
)

func TestSendSuccessWithStatusDefaults(t *testing.T) {
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "", map[string]string{"hello": "world"})
	})

	resp := performRequest(t, app, http.MethodGet, "/")
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	var payload struct {
		Success bool              `json:"success"`
		Message string            `json:"message"`
		Data    map[string]string `json:"data"`
	}
	decode(t, resp, &payload)

	require.True(t, payload.Success)
	require.Equal(t, "success", payload.Message)
	require.Equal(t, "world", payload.Data["hello"])
}

func TestFailIncludesFieldErrors(t *testing.T) {
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		return utils.Fail(c, fiber.StatusUnprocessableEntity, "invalid payload", map[string]string{"email": "is required"})
	})

	resp := performRequest(t, app, http.MethodGet, "/")
	require.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)

	var payload struct {
		Success bool                   `json:"success"`
		Message string                 `json:"message"`
		Errors  map[string]string      `json:"errors"`
		Data    map[string]interface{} `json:"data"`
	}
	decode(t, resp, &payload)

	require.False(t, payload.Success)
	require.Equal(t, "invalid payload", payload.Message)
	require.Equal(t, "is required", payload.Errors["email"])
	require.Nil(t, payload.Data)
}

func TestValidationErrorsUsesJSONNames(t *testing.T) {
	type nested struct {
		Role string `json:"role" validate:"oneof=user model"`
	}
	type request struct {
		DisplayName string   `json:"display_name" validate:"required,min=2"`
		Email       string   `json:"email" validate:"required,email"`
		Turns       []nested `json:"turns" validate:"dive"`
	}

	err := utils.NewValidator().Struct(request{DisplayName: "A", Email: "nope", Turns: []nested{{Role: "system"}}})
	fields := utils.ValidationErrors(err)

	require.Equal(t, "must be at least 2 characters", fields["display_name"])
	require.Equal(t, "must be a valid email address", fields["email"])
	require.Equal(t, "must be one of: user model", fields["turns[0].role"])

	require.Nil(t, utils.ValidationErrors(errors.New("boom")))
}

func performRequest(t *testing.T, app *fiber.App, method, path string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decode(t *testing.T, resp *http.Response, target interface{}) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(target))
}
