package api

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"github.com/wildwatch/wildwatch-go/internal/errors"
	"github.com/wildwatch/wildwatch-go/internal/model"
)

// AuthResponse is returned by login and signup.
type AuthResponse struct {
	User   model.RawUser `json:"user"`
	Tokens TokenPair     `json:"tokens"`
}

// DevicesResponse is returned by the device listing endpoints.
type DevicesResponse struct {
	Devices []model.RawDevice `json:"devices"`
}

// DetectionsResponse is returned by GET /images/. AccessLevel and
// OwnedDevicesCount are backend-assigned; the client stores them verbatim.
type DetectionsResponse struct {
	Images            []model.RawDetection `json:"images"`
	AccessLevel       model.AccessLevel    `json:"access_level"`
	OwnedDevicesCount int                  `json:"owned_devices_count"`
}

// DetectionFilter narrows the detection listing.
type DetectionFilter struct {
	DeviceID   string
	AnimalType string
}

// SignupPayload is the registration request body.
type SignupPayload struct {
	Username     string   `json:"username"`
	Email        string   `json:"email"`
	Password     string   `json:"password"`
	FirstName    string   `json:"first_name"`
	LastName     string   `json:"last_name"`
	MobileNumber string   `json:"mobile_number,omitempty"`
	UserType     string   `json:"user_type"`
	HomeLat      *float64 `json:"home_lat,omitempty"`
	HomeLon      *float64 `json:"home_lon,omitempty"`
}

// ProfileUpdate is the writable subset of the profile.
type ProfileUpdate struct {
	FirstName    string   `json:"first_name,omitempty"`
	LastName     string   `json:"last_name,omitempty"`
	MobileNumber string   `json:"mobile_number,omitempty"`
	HomeLat      *float64 `json:"home_lat,omitempty"`
	HomeLon      *float64 `json:"home_lon,omitempty"`
}

// SMSResult is returned by the test SMS endpoint.
type SMSResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	SID     string `json:"sid,omitempty"`
}

// Login authenticates with a username or email. An identifier containing '@'
// is sent as an email, otherwise as a username. The returned token pair is
// persisted before Login returns.
func (c *Client) Login(ctx context.Context, identifier, password string) (*AuthResponse, error) {
	body := map[string]string{"password": password}
	if strings.Contains(identifier, "@") {
		body["email"] = identifier
	} else {
		body["username"] = identifier
	}

	var resp AuthResponse
	err := c.do(ctx, &requestSpec{
		method:   http.MethodPost,
		endpoint: "/auth/login/",
		body:     body,
		noAuth:   true,
		out:      &resp,
	})
	if err != nil {
		return nil, err
	}

	if err := c.tokens.Set(resp.Tokens.Access, resp.Tokens.Refresh); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Signup registers a new user and persists the issued token pair.
func (c *Client) Signup(ctx context.Context, payload *SignupPayload) (*AuthResponse, error) {
	var resp AuthResponse
	err := c.do(ctx, &requestSpec{
		method:   http.MethodPost,
		endpoint: "/auth/signup/",
		body:     payload,
		noAuth:   true,
		out:      &resp,
	})
	if err != nil {
		return nil, err
	}

	if err := c.tokens.Set(resp.Tokens.Access, resp.Tokens.Refresh); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Logout asks the backend to blacklist the refresh token, then clears the
// local pair regardless of the outcome. The server error, if any, is
// returned so the caller can log it; local cleanup always succeeds.
func (c *Client) Logout(ctx context.Context) error {
	refresh := c.tokens.Refresh()
	var err error
	if refresh != "" {
		err = c.do(ctx, &requestSpec{
			method:   http.MethodPost,
			endpoint: "/auth/logout/",
			body:     map[string]string{"refresh": refresh},
		})
	}
	c.tokens.Clear()
	return err
}

// GetProfile fetches the authenticated user's profile.
func (c *Client) GetProfile(ctx context.Context) (*model.RawUser, error) {
	var user model.RawUser
	err := c.do(ctx, &requestSpec{
		method:   http.MethodGet,
		endpoint: "/auth/profile/",
		out:      &user,
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// UpdateProfile writes profile changes to the backend.
func (c *Client) UpdateProfile(ctx context.Context, update *ProfileUpdate) (*model.RawUser, error) {
	var user model.RawUser
	err := c.do(ctx, &requestSpec{
		method:   http.MethodPut,
		endpoint: "/auth/profile/",
		body:     update,
		out:      &user,
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetDevices lists all devices. Ranger-scoped; the backend enforces access.
func (c *Client) GetDevices(ctx context.Context) (*DevicesResponse, error) {
	var resp DevicesResponse
	err := c.do(ctx, &requestSpec{
		method:   http.MethodGet,
		endpoint: "/device/",
		out:      &resp,
	})
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetMyDevices lists only the devices owned by the authenticated user.
func (c *Client) GetMyDevices(ctx context.Context) (*DevicesResponse, error) {
	var resp DevicesResponse
	err := c.do(ctx, &requestSpec{
		method:   http.MethodGet,
		endpoint: "/user/devices/",
		out:      &resp,
	})
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// AddUserDevice claims a device for the authenticated user's account.
func (c *Client) AddUserDevice(ctx context.Context, deviceID string) error {
	return c.do(ctx, &requestSpec{
		method:   http.MethodPost,
		endpoint: "/user/devices/",
		body:     map[string]string{"device_id": deviceID},
	})
}

// RemoveUserDevice releases a device from the authenticated user's account.
func (c *Client) RemoveUserDevice(ctx context.Context, deviceID string) error {
	return c.do(ctx, &requestSpec{
		method:   http.MethodDelete,
		endpoint: "/user/devices/?device_id=" + url.QueryEscape(deviceID),
	})
}

// GetDetections lists captured detections, optionally filtered by device or
// animal type.
func (c *Client) GetDetections(ctx context.Context, filter *DetectionFilter) (*DetectionsResponse, error) {
	endpoint := "/images/"
	if filter != nil {
		params := url.Values{}
		if filter.DeviceID != "" {
			params.Set("device_id", filter.DeviceID)
		}
		if filter.AnimalType != "" {
			params.Set("animal_type", filter.AnimalType)
		}
		if encoded := params.Encode(); encoded != "" {
			endpoint += "?" + encoded
		}
	}

	var resp DetectionsResponse
	err := c.do(ctx, &requestSpec{
		method:   http.MethodGet,
		endpoint: endpoint,
		out:      &resp,
	})
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// UploadCapture submits an image for classification on behalf of a device
// (the simulator path). The multipart body sets its own content type; the
// transport must not override it.
func (c *Client) UploadCapture(ctx context.Context, deviceID, filename string, image io.Reader) (*model.RawDetection, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	if err := writer.WriteField("device_id", deviceID); err != nil {
		return nil, errors.New(err).
			Component("api").
			Category(errors.CategoryValidation).
			Build()
	}
	part, err := writer.CreateFormFile("image", filename)
	if err != nil {
		return nil, errors.New(err).
			Component("api").
			Category(errors.CategoryValidation).
			Build()
	}
	if _, err := io.Copy(part, image); err != nil {
		return nil, errors.New(err).
			Component("api").
			Category(errors.CategoryValidation).
			Context("device_id", deviceID).
			Build()
	}
	if err := writer.Close(); err != nil {
		return nil, errors.New(err).
			Component("api").
			Category(errors.CategoryValidation).
			Build()
	}

	var detection model.RawDetection
	err = c.do(ctx, &requestSpec{
		method:   http.MethodPost,
		endpoint: "/device/capture/",
		body: &multipartPayload{
			body:        buf.Bytes(),
			contentType: writer.FormDataContentType(),
		},
		out: &detection,
	})
	if err != nil {
		return nil, err
	}
	return &detection, nil
}

// SendTestSMS triggers a test SMS delivery to the given phone number.
func (c *Client) SendTestSMS(ctx context.Context, phoneNumber, message string) (*SMSResult, error) {
	body := map[string]string{"phone_number": phoneNumber}
	if message != "" {
		body["message"] = message
	}

	var result SMSResult
	err := c.do(ctx, &requestSpec{
		method:   http.MethodPost,
		endpoint: "/test/sms/",
		body:     body,
		out:      &result,
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}
