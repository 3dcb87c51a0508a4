package appcontext

import (
	"context"

	"github.com/sirupsen/logrus"
)

type contextId int

const (
	restoreNameKeyId contextId = iota
	blockNameKeyId
	nodeNameKeyId
	taskNameKeyId
	containerIdKeyId
	requestIdKeyId
)

func WithRequestId(ctx context.Context, requestId string) context.Context {
	return context.WithValue(ctx, requestIdKeyId, requestId)
}

func WithRestoreName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, restoreNameKeyId, name)
}

func WithBlockName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, blockNameKeyId, name)
}

func WithNodeName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, nodeNameKeyId, name)
}

func WithTaskName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, taskNameKeyId, name)
}

func WithContainerId(ctx context.Context, containerId string) context.Context {
	return context.WithValue(ctx, containerIdKeyId, containerId)
}

func RequestIdFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	requestId, _ := ctx.Value(requestIdKeyId).(string)
	return requestId
}

func LoggerFromContext(logger logrus.FieldLogger, ctx context.Context) logrus.FieldLogger {
	if ctx == nil {
		return logger
	}

	result := logger

	if ctxRestoreName, ok := ctx.Value(restoreNameKeyId).(string); ok {
		result = result.WithField("restore", ctxRestoreName)
	}

	if ctxBlockName, ok := ctx.Value(blockNameKeyId).(string); ok && ctxBlockName != "" {
		result = result.WithField("block", ctxBlockName)
	}

	if ctxNodeName, ok := ctx.Value(nodeNameKeyId).(string); ok && ctxNodeName != "" {
		result = result.WithField("node", ctxNodeName)
	}

	if ctxTaskName, ok := ctx.Value(taskNameKeyId).(string); ok && ctxTaskName != "" {
		result = result.WithField("task", ctxTaskName)
	}

	if ctxContainerId, ok := ctx.Value(containerIdKeyId).(string); ok && ctxContainerId != "" {
		result = result.WithField("container_id", ctxContainerId)
	}

	if ctxRequestId, ok := ctx.Value(requestIdKeyId).(string); ok && ctxRequestId != "" {
		result = result.WithField("request_id", ctxRequestId)
	}

	return result
}
