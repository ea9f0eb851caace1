package controller

import (
	"cluster-intelligence-be/internal/dto"
	"cluster-intelligence-be/internal/pkg/apperror"
	"cluster-intelligence-be/internal/pkg/serverutils"
	"cluster-intelligence-be/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type IClusterController interface {
	RegisterRoutes(r fiber.Router, auth fiber.Handler)
}

type clusterController struct {
	service     service.IClusterService
	suggestions service.IClusterSuggestionService
}

func NewClusterController(service service.IClusterService, suggestions service.IClusterSuggestionService) IClusterController {
	return &clusterController{service: service, suggestions: suggestions}
}

func (c *clusterController) RegisterRoutes(r fiber.Router, auth fiber.Handler) {
	h := r.Group("/cluster/v1")
	h.Use(auth)

	// Fixed paths before the :id routes.
	h.Get("", c.GetAll)
	h.Post("", c.Create)
	h.Get("health", c.GlobalHealth)
	h.Get("overlaps", c.Overlaps)
	h.Get("bridge-documents", c.BridgeDocuments)
	h.Get("events", c.Events)
	h.Post("merge", c.Merge)
	h.Post("rebalance", c.Rebalance)
	h.Post("auto-generate", c.AutoGenerate)
	h.Post("content-clusters", c.ContentClusters)

	h.Get("suggestions", c.ListSuggestions)
	h.Post("suggestions/generate", c.GenerateSuggestions)
	h.Post("suggestions/:id/accept", c.AcceptSuggestion)
	h.Post("suggestions/:id/dismiss", c.DismissSuggestion)

	h.Get(":id", c.Show)
	h.Put(":id", c.Update)
	h.Delete(":id", c.Delete)
	h.Get(":id/stats", c.Stats)
	h.Post(":id/health", c.AnalyzeHealth)
	h.Post(":id/split", c.Split)
	h.Post(":id/collections", c.AddCollection)
	h.Delete(":id/collections/:collectionId", c.RemoveCollection)
}

func uuidParam(ctx *fiber.Ctx, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(ctx.Params(name))
	if err != nil {
		return uuid.Nil, apperror.InvalidArgument("invalid %s", name)
	}
	return id, nil
}

// parseBody decodes and validates a JSON body into req.
func parseBody(ctx *fiber.Ctx, req interface{}) error {
	if err := ctx.BodyParser(req); err != nil {
		return apperror.InvalidArgument("invalid request body")
	}
	return serverutils.ValidateRequest(req)
}

func (c *clusterController) GetAll(ctx *fiber.Ctx) error {
	userId, err := serverutils.UserID(ctx)
	if err != nil {
		return err
	}

	res, err := c.service.GetUserClusters(ctx.Context(), userId)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success get all clusters", res))
}

func (c *clusterController) Create(ctx *fiber.Ctx) error {
	userId, err := serverutils.UserID(ctx)
	if err != nil {
		return err
	}

	var req dto.CreateClusterRequest
	if err := parseBody(ctx, &req); err != nil {
		return err
	}

	res, err := c.service.CreateCluster(ctx.Context(), userId, &req)
	if err != nil {
		return err
	}
	return ctx.Status(fiber.StatusCreated).JSON(serverutils.SuccessResponse("Success create cluster", res))
}

func (c *clusterController) Show(ctx *fiber.Ctx) error {
	userId, err := serverutils.UserID(ctx)
	if err != nil {
		return err
	}
	id, err := uuidParam(ctx, "id")
	if err != nil {
		return err
	}

	res, err := c.service.GetCluster(ctx.Context(), userId, id)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success show cluster", res))
}

func (c *clusterController) Update(ctx *fiber.Ctx) error {
	userId, err := serverutils.UserID(ctx)
	if err != nil {
		return err
	}
	id, err := uuidParam(ctx, "id")
	if err != nil {
		return err
	}

	var req dto.UpdateClusterRequest
	if err := parseBody(ctx, &req); err != nil {
		return err
	}
	req.Id = id

	res, err := c.service.UpdateCluster(ctx.Context(), userId, &req)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success update cluster", res))
}

func (c *clusterController) Delete(ctx *fiber.Ctx) error {
	userId, err := serverutils.UserID(ctx)
	if err != nil {
		return err
	}
	id, err := uuidParam(ctx, "id")
	if err != nil {
		return err
	}

	if err := c.service.DeleteCluster(ctx.Context(), userId, id); err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse[any]("Success delete cluster", nil))
}

func (c *clusterController) Stats(ctx *fiber.Ctx) error {
	userId, err := serverutils.UserID(ctx)
	if err != nil {
		return err
	}
	id, err := uuidParam(ctx, "id")
	if err != nil {
		return err
	}

	res, err := c.service.GetClusterStats(ctx.Context(), userId, id)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success get cluster stats", res))
}

func (c *clusterController) AnalyzeHealth(ctx *fiber.Ctx) error {
	userId, err := serverutils.UserID(ctx)
	if err != nil {
		return err
	}
	id, err := uuidParam(ctx, "id")
	if err != nil {
		return err
	}

	res, err := c.service.AnalyzeClusterHealth(ctx.Context(), userId, id)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success analyze cluster health", res))
}

func (c *clusterController) GlobalHealth(ctx *fiber.Ctx) error {
	userId, err := serverutils.UserID(ctx)
	if err != nil {
		return err
	}

	res, err := c.service.GetGlobalHealth(ctx.Context(), userId)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success get global health", res))
}

func (c *clusterController) AddCollection(ctx *fiber.Ctx) error {
	userId, err := serverutils.UserID(ctx)
	if err != nil {
		return err
	}
	id, err := uuidParam(ctx, "id")
	if err != nil {
		return err
	}

	var req dto.ClusterMembershipRequest
	if err := parseBody(ctx, &req); err != nil {
		return err
	}
	req.ClusterId = id

	res, err := c.service.AddCollectionToCluster(ctx.Context(), userId, &req)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success add collection to cluster", res))
}

func (c *clusterController) RemoveCollection(ctx *fiber.Ctx) error {
	userId, err := serverutils.UserID(ctx)
	if err != nil {
		return err
	}
	id, err := uuidParam(ctx, "id")
	if err != nil {
		return err
	}
	collectionId, err := uuidParam(ctx, "collectionId")
	if err != nil {
		return err
	}

	res, err := c.service.RemoveCollectionFromCluster(ctx.Context(), userId, &dto.ClusterMembershipRequest{
		ClusterId:    id,
		CollectionId: collectionId,
	})
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success remove collection from cluster", res))
}

func (c *clusterController) Split(ctx *fiber.Ctx) error {
	userId, err := serverutils.UserID(ctx)
	if err != nil {
		return err
	}
	id, err := uuidParam(ctx, "id")
	if err != nil {
		return err
	}

	var req dto.SplitClusterRequest
	if len(ctx.Body()) > 0 {
		if err := parseBody(ctx, &req); err != nil {
			return err
		}
	}
	req.ClusterId = id

	res, err := c.service.SplitCluster(ctx.Context(), userId, &req)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse(outcomeMessage(res.Success, "Cluster split", res.Reason), res))
}

func (c *clusterController) Merge(ctx *fiber.Ctx) error {
	userId, err := serverutils.UserID(ctx)
	if err != nil {
		return err
	}

	var req dto.MergeClustersRequest
	if err := parseBody(ctx, &req); err != nil {
		return err
	}

	res, err := c.service.MergeClusters(ctx.Context(), userId, &req)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse(outcomeMessage(res.Success, "Clusters merged", res.Reason), res))
}

func (c *clusterController) Rebalance(ctx *fiber.Ctx) error {
	userId, err := serverutils.UserID(ctx)
	if err != nil {
		return err
	}

	var req dto.RebalanceRequest
	if len(ctx.Body()) > 0 {
		if err := parseBody(ctx, &req); err != nil {
			return err
		}
	}

	res, err := c.service.RebalanceClusters(ctx.Context(), userId, &req)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success rebalance clusters", res))
}

// outcomeMessage words refused split and merge results, which are still 200s.
func outcomeMessage(success bool, done, reason string) string {
	if success {
		return done
	}
	return "Not applied: " + reason
}

func (c *clusterController) AutoGenerate(ctx *fiber.Ctx) error {
	userId, err := serverutils.UserID(ctx)
	if err != nil {
		return err
	}

	var req dto.AutoGenerateClusterRequest
	if err := parseBody(ctx, &req); err != nil {
		return err
	}

	res, err := c.service.AutoGenerateClusterForCollection(ctx.Context(), userId, req.CollectionId)
	if err != nil {
		return err
	}
	return ctx.Status(fiber.StatusCreated).JSON(serverutils.SuccessResponse("Success generate cluster", res))
}

func (c *clusterController) ContentClusters(ctx *fiber.Ctx) error {
	userId, err := serverutils.UserID(ctx)
	if err != nil {
		return err
	}

	var req dto.ContentClustersRequest
	if err := parseBody(ctx, &req); err != nil {
		return err
	}

	res, err := c.service.GetContentBasedClusters(ctx.Context(), userId, &req)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success get content clusters", res))
}

func (c *clusterController) Overlaps(ctx *fiber.Ctx) error {
	userId, err := serverutils.UserID(ctx)
	if err != nil {
		return err
	}

	res, err := c.service.GetClusterOverlaps(ctx.Context(), userId)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success get cluster overlaps", res))
}

func (c *clusterController) BridgeDocuments(ctx *fiber.Ctx) error {
	userId, err := serverutils.UserID(ctx)
	if err != nil {
		return err
	}

	threshold := ctx.QueryFloat("threshold", 0)
	limit := ctx.QueryInt("limit", 0)

	res, err := c.service.GetBridgeDocuments(ctx.Context(), userId, threshold, limit)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success get bridge documents", res))
}

func (c *clusterController) Events(ctx *fiber.Ctx) error {
	userId, err := serverutils.UserID(ctx)
	if err != nil {
		return err
	}

	var req dto.ListClusterEventsRequest
	if err := ctx.QueryParser(&req); err != nil {
		return apperror.InvalidArgument("invalid query")
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.service.ListClusterEvents(ctx.Context(), userId, &req)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success get cluster events", res))
}

func (c *clusterController) GenerateSuggestions(ctx *fiber.Ctx) error {
	userId, err := serverutils.UserID(ctx)
	if err != nil {
		return err
	}

	res, err := c.suggestions.GenerateSuggestions(ctx.Context(), userId)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success generate suggestions", res))
}

func (c *clusterController) ListSuggestions(ctx *fiber.Ctx) error {
	userId, err := serverutils.UserID(ctx)
	if err != nil {
		return err
	}

	res, err := c.suggestions.ListSuggestions(ctx.Context(), userId, ctx.Query("status"))
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success get suggestions", res))
}

func (c *clusterController) AcceptSuggestion(ctx *fiber.Ctx) error {
	userId, err := serverutils.UserID(ctx)
	if err != nil {
		return err
	}
	id, err := uuidParam(ctx, "id")
	if err != nil {
		return err
	}

	res, err := c.suggestions.AcceptSuggestion(ctx.Context(), userId, id)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success accept suggestion", res))
}

func (c *clusterController) DismissSuggestion(ctx *fiber.Ctx) error {
	userId, err := serverutils.UserID(ctx)
	if err != nil {
		return err
	}
	id, err := uuidParam(ctx, "id")
	if err != nil {
		return err
	}

	res, err := c.suggestions.DismissSuggestion(ctx.Context(), userId, id)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success dismiss suggestion", res))
}
