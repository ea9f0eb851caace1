package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"cluster-intelligence-be/internal/constant"
	"cluster-intelligence-be/internal/dto"
	"cluster-intelligence-be/internal/entity"
	"cluster-intelligence-be/internal/pkg/apperror"
	"cluster-intelligence-be/internal/pkg/logger"
	"cluster-intelligence-be/internal/repository/specification"
	"cluster-intelligence-be/internal/repository/unitofwork"
	"cluster-intelligence-be/pkg/clusterhealth"

	"github.com/google/uuid"
)

type IClusterSuggestionService interface {
	GenerateSuggestions(ctx context.Context, userId uuid.UUID) (*dto.GenerateSuggestionsResponse, error)
	ListSuggestions(ctx context.Context, userId uuid.UUID, status string) ([]*dto.ClusterSuggestionResponse, error)
	AcceptSuggestion(ctx context.Context, userId uuid.UUID, suggestionId uuid.UUID) (*dto.AcceptSuggestionResponse, error)
	DismissSuggestion(ctx context.Context, userId uuid.UUID, suggestionId uuid.UUID) (*dto.ClusterSuggestionResponse, error)
}

type clusterSuggestionService struct {
	uowFactory     unitofwork.RepositoryFactory
	clusterService IClusterService
	topology       IClusterTopologyService
	logger         logger.ILogger
	ttl            time.Duration
	now            func() time.Time
}

func NewClusterSuggestionService(
	uowFactory unitofwork.RepositoryFactory,
	clusterService IClusterService,
	topology IClusterTopologyService,
	log logger.ILogger,
	ttl time.Duration,
) IClusterSuggestionService {
	if ttl <= 0 {
		ttl = constant.DefaultSuggestionTTL
	}
	return &clusterSuggestionService{
		uowFactory:     uowFactory,
		clusterService: clusterService,
		topology:       topology,
		logger:         log,
		ttl:            ttl,
		now:            timeNow,
	}
}

func (s *clusterSuggestionService) expireStale(ctx context.Context, uow unitofwork.UnitOfWork, userId uuid.UUID) (int64, error) {
	n, err := uow.ClusterSuggestionRepository().ExpirePending(ctx,
		specification.UserOwnedBy{UserID: userId},
		specification.ExpiredBefore{At: s.now()},
	)
	if err != nil {
		return 0, apperror.Persistence("expire suggestions", err)
	}
	return n, nil
}

// suggestionKey identifies a suggestion by what it proposes, ignoring
// confidence and wording.
func suggestionKey(sg *entity.ClusterSuggestion) string {
	var b strings.Builder
	b.WriteString(sg.Type)
	if sg.CollectionId != nil {
		b.WriteString("|c:" + sg.CollectionId.String())
	}
	if sg.SourceClusterId != nil {
		b.WriteString("|s:" + sg.SourceClusterId.String())
	}
	targets := uuidStrings(sg.TargetClusterIds)
	sort.Strings(targets)
	b.WriteString("|t:" + strings.Join(targets, ","))
	return b.String()
}

func (s *clusterSuggestionService) GenerateSuggestions(ctx context.Context, userId uuid.UUID) (*dto.GenerateSuggestionsResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	expired, err := s.expireStale(ctx, uow, userId)
	if err != nil {
		return nil, err
	}

	analysis, err := s.topology.AnalyzeRebalance(ctx, userId, &dto.RebalanceRequest{})
	if err != nil {
		return nil, err
	}
	overlaps, err := s.clusterService.GetClusterOverlaps(ctx, userId)
	if err != nil {
		return nil, err
	}
	health, err := s.clusterService.GetGlobalHealth(ctx, userId)
	if err != nil {
		return nil, err
	}
	unclustered, err := uow.CollectionRepository().FindAll(ctx,
		specification.UserOwnedBy{UserID: userId},
		specification.Unclustered{},
	)
	if err != nil {
		return nil, apperror.Persistence("load unclustered collections", err)
	}
	sortCollectionsByName(unclustered)

	candidates := buildSuggestions(userId, analysis, overlaps, health, unclustered)

	pending, err := uow.ClusterSuggestionRepository().FindAll(ctx,
		specification.UserOwnedBy{UserID: userId},
		specification.ByStatus{Status: constant.SuggestionStatusPending},
	)
	if err != nil {
		return nil, apperror.Persistence("load pending suggestions", err)
	}
	known := make(map[string]bool, len(pending))
	for _, p := range pending {
		known[suggestionKey(p)] = true
	}

	res := &dto.GenerateSuggestionsResponse{Expired: expired, Suggestions: make([]*dto.ClusterSuggestionResponse, 0)}
	now := s.now()
	expiresAt := now.Add(s.ttl)
	for _, sg := range candidates {
		key := suggestionKey(sg)
		if known[key] {
			continue
		}
		known[key] = true
		sg.Id = uuid.New()
		sg.Status = constant.SuggestionStatusPending
		sg.ExpiresAt = &expiresAt
		sg.CreatedAt = now
		if err := uow.ClusterSuggestionRepository().Create(ctx, sg); err != nil {
			return nil, apperror.Persistence("create suggestion", err)
		}
		res.Created++
		res.Suggestions = append(res.Suggestions, toSuggestionResponse(sg))
	}

	s.logger.Info(logger.ModuleSuggestion, "Generated cluster suggestions", map[string]interface{}{
		"user_id": userId.String(),
		"created": res.Created,
		"expired": expired,
	})
	return res, nil
}

// buildSuggestions turns the advisory analyses into suggestion drafts.
func buildSuggestions(
	userId uuid.UUID,
	analysis *dto.RebalanceAnalysis,
	overlaps []*dto.ClusterOverlap,
	health *clusterhealth.GlobalReport,
	unclustered []*entity.Collection,
) []*entity.ClusterSuggestion {
	out := make([]*entity.ClusterSuggestion, 0)

	for _, mv := range analysis.Moves {
		out = append(out, &entity.ClusterSuggestion{
			UserId:           userId,
			Type:             constant.SuggestionTypeMove,
			CollectionId:     uuidPtr(mv.CollectionId),
			SourceClusterId:  uuidPtr(mv.FromClusterId),
			TargetClusterIds: []uuid.UUID{mv.ToClusterId},
			Confidence:       clamp01(mv.TargetScore),
			Reasoning: fmt.Sprintf("%s fits %s (%.2f) better than %s (%.2f)",
				mv.CollectionName, mv.ToClusterName, mv.TargetScore, mv.FromClusterName, mv.CurrentScore),
		})
	}

	splitSeen := make(map[uuid.UUID]bool)
	for _, item := range analysis.Oversized {
		splitSeen[item.ClusterId] = true
		out = append(out, &entity.ClusterSuggestion{
			UserId:          userId,
			Type:            constant.SuggestionTypeSplit,
			SourceClusterId: uuidPtr(item.ClusterId),
			Confidence:      0.8,
			Reasoning:       fmt.Sprintf("%s holds %d collections", item.Name, item.Size),
		})
	}

	mergeSeen := make(map[uuid.UUID]bool)
	for _, o := range overlaps {
		if !o.MergeCandidate {
			continue
		}
		mergeSeen[o.FirstClusterId], mergeSeen[o.SecondClusterId] = true, true
		out = append(out, &entity.ClusterSuggestion{
			UserId:           userId,
			Type:             constant.SuggestionTypeMerge,
			TargetClusterIds: []uuid.UUID{o.FirstClusterId, o.SecondClusterId},
			Confidence:       clamp01(o.Overlap),
			Reasoning:        fmt.Sprintf("%s and %s overlap (%.2f)", o.FirstName, o.SecondName, o.Overlap),
		})
	}

	for _, item := range health.ActionItems {
		id, err := uuid.Parse(item.ClusterID)
		if err != nil {
			continue
		}
		switch item.Type {
		case clusterhealth.ActionSplitCluster:
			if splitSeen[id] {
				continue
			}
			splitSeen[id] = true
			out = append(out, &entity.ClusterSuggestion{
				UserId:          userId,
				Type:            constant.SuggestionTypeSplit,
				SourceClusterId: uuidPtr(id),
				Confidence:      0.7,
				Reasoning:       item.Reason,
			})
		case clusterhealth.ActionMergeOrExpand:
			if mergeSeen[id] {
				continue
			}
			if partner := bestOverlapPartner(id, overlaps); partner != nil {
				mergeSeen[id] = true
				out = append(out, &entity.ClusterSuggestion{
					UserId:           userId,
					Type:             constant.SuggestionTypeMerge,
					TargetClusterIds: []uuid.UUID{id, partner.id},
					Confidence:       clamp01(partner.overlap),
					Reasoning:        fmt.Sprintf("%s: %s", item.ClusterName, item.Reason),
				})
			}
		}
	}

	for _, col := range unclustered {
		out = append(out, &entity.ClusterSuggestion{
			UserId:       userId,
			Type:         constant.SuggestionTypeCreate,
			CollectionId: uuidPtr(col.Id),
			Confidence:   0.5,
			Reasoning:    fmt.Sprintf("%s is not part of any cluster", col.Name),
		})
	}
	return out
}

type overlapPartner struct {
	id      uuid.UUID
	overlap float64
}

func bestOverlapPartner(clusterId uuid.UUID, overlaps []*dto.ClusterOverlap) *overlapPartner {
	var best *overlapPartner
	for _, o := range overlaps {
		var other uuid.UUID
		switch clusterId {
		case o.FirstClusterId:
			other = o.SecondClusterId
		case o.SecondClusterId:
			other = o.FirstClusterId
		default:
			continue
		}
		if best == nil || o.Overlap > best.overlap {
			best = &overlapPartner{id: other, overlap: o.Overlap}
		}
	}
	return best
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

func (s *clusterSuggestionService) ListSuggestions(ctx context.Context, userId uuid.UUID, status string) ([]*dto.ClusterSuggestionResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	if _, err := s.expireStale(ctx, uow, userId); err != nil {
		return nil, err
	}

	specs := []specification.Specification{specification.UserOwnedBy{UserID: userId}}
	if status != "" {
		specs = append(specs, specification.ByStatus{Status: status})
	}
	specs = append(specs, specification.OrderBy{Field: "created_at", Desc: true})

	suggestions, err := uow.ClusterSuggestionRepository().FindAll(ctx, specs...)
	if err != nil {
		return nil, apperror.Persistence("list suggestions", err)
	}
	out := make([]*dto.ClusterSuggestionResponse, 0, len(suggestions))
	for _, sg := range suggestions {
		out = append(out, toSuggestionResponse(sg))
	}
	return out, nil
}

// findPending loads a suggestion and makes sure it can still be acted on.
// Stale pending suggestions are expired on the way.
func (s *clusterSuggestionService) findPending(ctx context.Context, uow unitofwork.UnitOfWork, userId, suggestionId uuid.UUID) (*entity.ClusterSuggestion, error) {
	sg, err := uow.ClusterSuggestionRepository().FindOne(ctx,
		specification.ByID{ID: suggestionId},
		specification.UserOwnedBy{UserID: userId},
	)
	if err != nil {
		return nil, apperror.Persistence("find suggestion", err)
	}
	if sg == nil {
		return nil, apperror.NotFound("suggestion %s", suggestionId)
	}
	if sg.Status == constant.SuggestionStatusPending && sg.IsExpired(s.now()) {
		if err := s.setStatus(ctx, uow, sg, constant.SuggestionStatusExpired); err != nil {
			return nil, err
		}
	}
	if sg.Status != constant.SuggestionStatusPending {
		return nil, apperror.Conflict("suggestion %s is %s", suggestionId, sg.Status)
	}
	return sg, nil
}

func (s *clusterSuggestionService) setStatus(ctx context.Context, uow unitofwork.UnitOfWork, sg *entity.ClusterSuggestion, status string) error {
	sg.Status = status
	now := s.now()
	sg.UpdatedAt = &now
	if err := uow.ClusterSuggestionRepository().Update(ctx, sg); err != nil {
		return apperror.Persistence("update suggestion", err)
	}
	return nil
}

// AcceptSuggestion applies the suggestion through the topology service. A
// refused merge or split leaves the suggestion pending.
func (s *clusterSuggestionService) AcceptSuggestion(ctx context.Context, userId uuid.UUID, suggestionId uuid.UUID) (*dto.AcceptSuggestionResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	sg, err := s.findPending(ctx, uow, userId, suggestionId)
	if err != nil {
		return nil, err
	}

	var result interface{}
	applied := true
	switch sg.Type {
	case constant.SuggestionTypeMove:
		if sg.CollectionId == nil || len(sg.TargetClusterIds) == 0 {
			return nil, apperror.InvalidArgument("move suggestion without collection or target")
		}
		result, err = s.topology.Move(ctx, userId, *sg.CollectionId, &sg.TargetClusterIds[0], "accepted suggestion")
	case constant.SuggestionTypeMerge:
		var merged *dto.MergeClustersResponse
		merged, err = s.topology.Merge(ctx, userId, &dto.MergeClustersRequest{ClusterIds: sg.TargetClusterIds})
		if merged != nil {
			applied = merged.Success
		}
		result = merged
	case constant.SuggestionTypeSplit:
		if sg.SourceClusterId == nil {
			return nil, apperror.InvalidArgument("split suggestion without source cluster")
		}
		var split *dto.SplitClusterResponse
		split, err = s.topology.Split(ctx, userId, &dto.SplitClusterRequest{ClusterId: *sg.SourceClusterId})
		if split != nil {
			applied = split.Success
		}
		result = split
	case constant.SuggestionTypeCreate:
		if sg.CollectionId == nil {
			return nil, apperror.InvalidArgument("create suggestion without collection")
		}
		result, err = s.clusterService.AutoGenerateClusterForCollection(ctx, userId, *sg.CollectionId)
	default:
		return nil, apperror.InvalidArgument("unknown suggestion type %q", sg.Type)
	}
	if err != nil {
		return nil, err
	}

	if applied {
		if err := s.setStatus(ctx, uow, sg, constant.SuggestionStatusAccepted); err != nil {
			return nil, err
		}
	}
	return &dto.AcceptSuggestionResponse{Suggestion: toSuggestionResponse(sg), Result: result}, nil
}

func (s *clusterSuggestionService) DismissSuggestion(ctx context.Context, userId uuid.UUID, suggestionId uuid.UUID) (*dto.ClusterSuggestionResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	sg, err := s.findPending(ctx, uow, userId, suggestionId)
	if err != nil {
		return nil, err
	}
	if err := s.setStatus(ctx, uow, sg, constant.SuggestionStatusDismissed); err != nil {
		return nil, err
	}
	return toSuggestionResponse(sg), nil
}
