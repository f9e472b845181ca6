package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"campusq/pkg/config"
	apperrors "campusq/pkg/errors"
	"campusq/pkg/model"
)

// Identity headers set by the trusted gateway in front of the engine.
const (
	HeaderHolderID   = "X-Holder-ID"
	HeaderHolderName = "X-Holder-Name"
	HeaderRole       = "X-Role"
)

func ExtractLimitOffset(r *http.Request) (int, int64, error) {
	query := r.URL.Query()

	limit := 0
	if s := query.Get("limit"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil {
			return 0, 0, apperrors.InvalidInput("invalid limit parameter: " + s)
		}
		limit = v
	}

	var offset int64 = 0
	if s := query.Get("offset"); s != "" {
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, 0, apperrors.InvalidInput("invalid offset parameter: " + s)
		}
		offset = v
	}

	limit = config.NormalizePaginationLimit(limit)
	offset = config.NormalizeOffset(offset)

	return limit, offset, nil
}

// ActorFromRequest reads the caller identity. A missing holder id is
// rejected; an absent or unknown role is treated as a plain holder.
func ActorFromRequest(r *http.Request) (model.Actor, error) {
	id := strings.TrimSpace(r.Header.Get(HeaderHolderID))
	if id == "" {
		return model.Actor{}, apperrors.Forbidden("missing " + HeaderHolderID + " header")
	}

	role := model.RoleHolder
	if strings.EqualFold(strings.TrimSpace(r.Header.Get(HeaderRole)), string(model.RoleAdmin)) {
		role = model.RoleAdmin
	}

	return model.Actor{
		ID:   id,
		Name: strings.TrimSpace(r.Header.Get(HeaderHolderName)),
		Role: role,
	}, nil
}

// DecodeJSON decodes a request body, rejecting unknown fields. An empty
// body decodes to the zero value.
func DecodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return apperrors.InvalidInput("Invalid request body: " + err.Error())
	}
	return nil
}
