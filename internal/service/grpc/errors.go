package grpcsvc

import (
	"context"
	"errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	bookstorev1 "github.com/vladislavdragonenkov/bookstore/api/bookstore/v1"
	"github.com/vladislavdragonenkov/bookstore/internal/domain"
)

// toStatus переводит доменную ошибку в gRPC-статус. Вид ошибки уходит в трейлер
// x-error-kind, в префикс сообщения и в ErrorInfo деталей статуса.
func (s *CheckoutService) toStatus(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	kind := domain.KindOf(err)
	code := codeFor(kind, err)
	msg := err.Error()
	if kind != "" {
		msg = string(kind) + ": " + msg
	}
	if code == codes.Internal {
		s.logger.WithError(err).WithField("kind", kind).Error("request failed")
	}

	setErrorKindTrailer(ctx, string(kind))
	return bookstorev1.NewKindStatus(code, string(kind), msg).Err()
}

func codeFor(kind domain.ErrorKind, err error) codes.Code {
	switch kind {
	case domain.KindEmptyCart, domain.KindInvalidArgument, domain.KindUnknownStatus:
		return codes.InvalidArgument
	case domain.KindCartInactive, domain.KindIllegalTransition:
		return codes.FailedPrecondition
	case domain.KindNoInventory, domain.KindInsufficientStock:
		return codes.ResourceExhausted
	case domain.KindNotFound:
		return codes.NotFound
	case domain.KindPersistence:
		switch {
		case errors.Is(err, domain.ErrOrderNumberTaken):
			return codes.AlreadyExists
		case errors.Is(err, domain.ErrOrderVersionConflict):
			return codes.Aborted
		case domain.IsTransient(err), errors.Is(err, context.DeadlineExceeded):
			return codes.Unavailable
		}
		return codes.Internal
	}

	switch {
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	}
	return codes.Internal
}

// setErrorKindTrailer выставляет трейлер, если ctx принадлежит серверному вызову.
func setErrorKindTrailer(ctx context.Context, kind string) {
	if kind == "" {
		return
	}
	_ = grpc.SetTrailer(ctx, metadata.Pairs(bookstorev1.TrailerErrorKind, kind))
}
