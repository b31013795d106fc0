package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"tourtrust/internal/attest"
	"tourtrust/internal/domain"
	"tourtrust/internal/engine"
	"tourtrust/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"provider_not_verified"`
	Message string         `json:"message" example:"provider prov-1 is not verified"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the TourTrust API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema-level request validation maps to 400 bad_request.
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(basePath, cfg.Auth))
	hcfg := huma.DefaultConfig("TourTrust API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = ""
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerHealth(group)
	registerVerifications(group, cfg.Engine)
	registerTransactions(group, cfg.Engine)
	registerContracts(group, cfg.Engine)
	registerBookings(group, cfg.Engine)
	registerReviews(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerStats(group, cfg.Engine)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

// handleError maps engine error kinds onto the HTTP envelope.
func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var ve engine.ValidationError
	if errors.As(err, &ve) {
		return newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	var ce engine.ConflictError
	if errors.As(err, &ce) {
		return newAPIError(http.StatusConflict, "conflict", err.Error(), map[string]any{"entity": ce.Entity, "id": ce.ID})
	}
	var ise engine.InvalidStateError
	if errors.As(err, &ise) {
		return newAPIError(http.StatusUnprocessableEntity, "invalid_state", err.Error(), map[string]any{"entity": ise.Entity, "id": ise.ID})
	}
	var pnv engine.ProviderNotVerifiedError
	if errors.As(err, &pnv) {
		return newAPIError(http.StatusUnprocessableEntity, "provider_not_verified", err.Error(), map[string]any{"provider_id": pnv.ProviderID})
	}
	if errors.Is(err, attest.ErrUnavailable) {
		return newAPIError(http.StatusServiceUnavailable, "attestation_unavailable", err.Error(), nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "invalid_state"
	case http.StatusServiceUnavailable:
		return "attestation_unavailable"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerVerifications(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "submit-verification",
		Method:        http.MethodPost,
		Path:          "/verifications",
		Summary:       "Submit a verification request",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Body SubmitVerificationRequest `json:"body"`
	}) (*struct {
		Body domain.VerificationRecord `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		v, err := e.SubmitVerification(ctx, input.Body.SubjectName, input.Body.SubjectType, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.VerificationRecord `json:"body"`
		}{Body: v}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-verifications",
		Method:      http.MethodGet,
		Path:        "/verifications",
		Summary:     "List verification records",
	}, func(ctx context.Context, input *struct {
		Status      string `query:"status"`
		SubjectType string `query:"subject_type"`
		Limit       int    `query:"limit"`
	}) (*struct {
		Body []domain.VerificationRecord `json:"body"`
	}, error) {
		items, err := e.Repo.ListVerifications(ctx, repo.VerificationFilters{
			Status:      input.Status,
			SubjectType: input.SubjectType,
			Limit:       input.Limit,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.VerificationRecord `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-verification",
		Method:      http.MethodGet,
		Path:        "/verifications/{id}",
		Summary:     "Get a verification record",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body domain.VerificationRecord `json:"body"`
	}, error) {
		v, err := e.Repo.GetVerification(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.VerificationRecord `json:"body"`
		}{Body: v}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "decide-verification",
		Method:      http.MethodPost,
		Path:        "/verifications/{id}/decision",
		Summary:     "Approve or reject a pending verification",
		Errors: []int{
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
			http.StatusServiceUnavailable,
		},
	}, func(ctx context.Context, input *struct {
		ID   string                    `path:"id"`
		Body DecideVerificationRequest `json:"body"`
	}) (*struct {
		Body domain.VerificationRecord `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		v, err := e.DecideVerification(ctx, input.ID, input.Body.Approve, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.VerificationRecord `json:"body"`
		}{Body: v}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "expire-verification",
		Method:      http.MethodPost,
		Path:        "/verifications/{id}/expire",
		Summary:     "Expire a verified record",
		Errors:      []int{http.StatusNotFound, http.StatusConflict, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body domain.VerificationRecord `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		v, err := e.ExpireVerification(ctx, input.ID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.VerificationRecord `json:"body"`
		}{Body: v}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-trust-score",
		Method:      http.MethodGet,
		Path:        "/verifications/{id}/score",
		Summary:     "Current trust score for a subject",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body ScoreResponse `json:"body"`
	}, error) {
		score, err := e.ScoreOf(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ScoreResponse `json:"body"`
		}{Body: ScoreResponse{SubjectID: input.ID, TrustScore: score}}, nil
	})
}

func registerTransactions(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "record-transaction",
		Method:        http.MethodPost,
		Path:          "/transactions",
		Summary:       "Record a transaction",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body RecordTransactionRequest `json:"body"`
	}) (*struct {
		Body domain.Transaction `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.RecordTransaction(ctx, engine.RecordTransactionOptions{
			Kind:       input.Body.Kind,
			Amount:     input.Body.Amount,
			From:       input.Body.From,
			To:         input.Body.To,
			ContractID: input.Body.ContractID,
		}, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Transaction `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-transactions",
		Method:      http.MethodGet,
		Path:        "/transactions",
		Summary:     "List transactions",
	}, func(ctx context.Context, input *struct {
		Kind       string `query:"kind"`
		Status     string `query:"status"`
		ContractID string `query:"contract_id"`
		Limit      int    `query:"limit"`
	}) (*struct {
		Body []domain.Transaction `json:"body"`
	}, error) {
		items, err := e.Repo.ListTransactions(ctx, repo.TransactionFilters{
			Kind:       input.Kind,
			Status:     input.Status,
			ContractID: input.ContractID,
			Limit:      input.Limit,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Transaction `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-transaction",
		Method:      http.MethodGet,
		Path:        "/transactions/{id}",
		Summary:     "Get a transaction",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body domain.Transaction `json:"body"`
	}, error) {
		t, err := e.Repo.GetTransaction(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Transaction `json:"body"`
		}{Body: t}, nil
	})

	type txnPath struct {
		ID string `path:"id"`
	}
	transition := func(opID, pathSuffix, summary string, run func(ctx context.Context, id, actorID string) (domain.Transaction, error)) {
		huma.Register(api, huma.Operation{
			OperationID: opID,
			Method:      http.MethodPost,
			Path:        "/transactions/{id}/" + pathSuffix,
			Summary:     summary,
			Errors:      []int{http.StatusNotFound, http.StatusConflict, http.StatusUnprocessableEntity},
		}, func(ctx context.Context, input *txnPath) (*struct {
			Body domain.Transaction `json:"body"`
		}, error) {
			actorID, authErr := actorIDFromContext(ctx)
			if authErr != nil {
				return nil, authErr
			}
			t, err := run(ctx, input.ID, actorID)
			if err != nil {
				return nil, handleError(err)
			}
			return &struct {
				Body domain.Transaction `json:"body"`
			}{Body: t}, nil
		})
	}
	transition("confirm-transaction", "confirm", "Confirm a pending transaction", e.ConfirmTransaction)
	transition("complete-transaction", "complete", "Complete a confirmed transaction", e.CompleteTransaction)

	huma.Register(api, huma.Operation{
		OperationID: "fail-transaction",
		Method:      http.MethodPost,
		Path:        "/transactions/{id}/fail",
		Summary:     "Fail a transaction",
		Errors:      []int{http.StatusNotFound, http.StatusConflict, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		ID   string                 `path:"id"`
		Body FailTransactionRequest `json:"body"`
	}) (*struct {
		Body domain.Transaction `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.FailTransaction(ctx, input.ID, input.Body.Reason, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Transaction `json:"body"`
		}{Body: t}, nil
	})
}

func registerContracts(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-contract",
		Method:        http.MethodPost,
		Path:          "/contracts",
		Summary:       "Create a draft escrow contract",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body CreateContractRequest `json:"body"`
	}) (*struct {
		Body domain.SmartContract `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		opts := engine.CreateContractOptions{
			BookingID:   input.Body.BookingID,
			Type:        input.Body.Type,
			TotalAmount: input.Body.TotalAmount,
			Parties:     input.Body.Parties,
			Terms:       input.Body.Terms,
			ExpiresAt:   input.Body.ExpiresAt,
		}
		for _, m := range input.Body.Milestones {
			opts.Milestones = append(opts.Milestones, engine.MilestoneInput{
				Description: m.Description,
				Amount:      m.Amount,
				DueDate:     m.DueDate,
			})
		}
		c, err := e.CreateContract(ctx, opts, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.SmartContract `json:"body"`
		}{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-contracts",
		Method:      http.MethodGet,
		Path:        "/contracts",
		Summary:     "List contracts",
	}, func(ctx context.Context, input *struct {
		Status    string `query:"status"`
		BookingID string `query:"booking_id"`
		Limit     int    `query:"limit"`
	}) (*struct {
		Body []domain.SmartContract `json:"body"`
	}, error) {
		items, err := e.Repo.ListContracts(ctx, repo.ContractFilters{
			Status:    input.Status,
			BookingID: input.BookingID,
			Limit:     input.Limit,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.SmartContract `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-contract",
		Method:      http.MethodGet,
		Path:        "/contracts/{id}",
		Summary:     "Get a contract with milestones",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body domain.SmartContract `json:"body"`
	}, error) {
		c, err := e.Repo.GetContract(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.SmartContract `json:"body"`
		}{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "activate-contract",
		Method:      http.MethodPost,
		Path:        "/contracts/{id}/activate",
		Summary:     "Activate a funded draft contract",
		Errors:      []int{http.StatusNotFound, http.StatusConflict, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body domain.SmartContract `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.ActivateContract(ctx, input.ID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.SmartContract `json:"body"`
		}{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "complete-milestone",
		Method:      http.MethodPost,
		Path:        "/contracts/{id}/milestones/{milestone_id}/complete",
		Summary:     "Complete a milestone",
		Errors:      []int{http.StatusNotFound, http.StatusConflict, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		ID          string `path:"id"`
		MilestoneID string `path:"milestone_id"`
	}) (*struct {
		Body domain.SmartContract `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.CompleteMilestone(ctx, input.ID, input.MilestoneID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.SmartContract `json:"body"`
		}{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "dispute-milestone",
		Method:      http.MethodPost,
		Path:        "/contracts/{id}/milestones/{milestone_id}/dispute",
		Summary:     "Dispute a milestone",
		Errors:      []int{http.StatusNotFound, http.StatusConflict, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		ID          string                  `path:"id"`
		MilestoneID string                  `path:"milestone_id"`
		Body        DisputeMilestoneRequest `json:"body"`
	}) (*struct {
		Body domain.SmartContract `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.DisputeMilestone(ctx, input.ID, input.MilestoneID, input.Body.Reason, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.SmartContract `json:"body"`
		}{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "resolve-dispute",
		Method:      http.MethodPost,
		Path:        "/contracts/{id}/resolve",
		Summary:     "Resolve a disputed contract",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		ID   string                `path:"id"`
		Body ResolveDisputeRequest `json:"body"`
	}) (*struct {
		Body domain.SmartContract `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.ResolveDispute(ctx, input.ID, input.Body.Outcome, input.Body.Note, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.SmartContract `json:"body"`
		}{Body: c}, nil
	})
}

func registerBookings(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-booking",
		Method:        http.MethodPost,
		Path:          "/bookings",
		Summary:       "Book a listing",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		Body BookRequest `json:"body"`
	}) (*struct {
		Body domain.BookingResult `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		res, err := e.Book(ctx, engine.BookOptions{
			Listing:           input.Body.Listing,
			GuestCount:        input.Body.GuestCount,
			StartDate:         input.Body.StartDate,
			EndDate:           input.Body.EndDate,
			PaymentPreference: input.Body.PaymentPreference,
		}, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.BookingResult `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-bookings",
		Method:      http.MethodGet,
		Path:        "/bookings",
		Summary:     "List bookings",
	}, func(ctx context.Context, input *struct {
		ListingID string `query:"listing_id"`
		Limit     int    `query:"limit"`
	}) (*struct {
		Body []domain.Booking `json:"body"`
	}, error) {
		items, err := e.Repo.ListBookings(ctx, input.ListingID, input.Limit)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Booking `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-booking",
		Method:      http.MethodGet,
		Path:        "/bookings/{id}",
		Summary:     "Get a booking",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body domain.Booking `json:"body"`
	}, error) {
		b, err := e.Repo.GetBooking(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Booking `json:"body"`
		}{Body: b}, nil
	})
}

func registerReviews(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "add-review",
		Method:        http.MethodPost,
		Path:          "/reviews",
		Summary:       "Add a review for a verified subject",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Body AddReviewRequest `json:"body"`
	}) (*struct {
		Body domain.Review `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		rv, err := e.AddReview(ctx, engine.AddReviewOptions{
			SubjectID: input.Body.SubjectID,
			Rating:    input.Body.Rating,
			Comment:   input.Body.Comment,
			Proof:     input.Body.Proof,
		}, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Review `json:"body"`
		}{Body: rv}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-reviews",
		Method:      http.MethodGet,
		Path:        "/reviews",
		Summary:     "List reviews for a subject",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		SubjectID string `query:"subject_id"`
		Limit     int    `query:"limit"`
	}) (*struct {
		Body []domain.Review `json:"body"`
	}, error) {
		items, err := e.ReviewsFor(ctx, input.SubjectID, input.Limit)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Review `json:"body"`
		}{Body: items}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "Tail the event log",
	}, func(ctx context.Context, input *struct {
		Limit      int    `query:"limit"`
		EntityKind string `query:"entity_kind"`
		EntityID   string `query:"entity_id"`
	}) (*struct {
		Body []domain.Event `json:"body"`
	}, error) {
		items, err := e.Repo.LatestEvents(ctx, input.Limit, input.EntityKind, input.EntityID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Event `json:"body"`
		}{Body: items}, nil
	})
}

func registerStats(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "verification-stats",
		Method:      http.MethodGet,
		Path:        "/stats",
		Summary:     "Verification counts and average trust score",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body domain.VerificationStats `json:"body"`
	}, error) {
		stats, err := e.Repo.VerificationStats(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.VerificationStats `json:"body"`
		}{Body: stats}, nil
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, swaggerHTML(basePath))
	})
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	security := []map[string][]string{{"bearerAuth": {}}}
	oas.Security = security
	healthPath := path.Join(basePath, "health")
	if !strings.HasPrefix(healthPath, "/") {
		healthPath = "/" + healthPath
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if route == healthPath {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>TourTrust API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
  </body>
</html>`, specURL)
}
