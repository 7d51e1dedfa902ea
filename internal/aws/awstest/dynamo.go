// Package awstest provides an in-memory DynamoDB stand-in for unit tests.
//
// It understands only the expression shapes the stores in this module emit:
// conditions built from attribute_exists(x), attribute_not_exists(x) and
// x = :v joined by AND / OR, key conditions of the form x = :v, and
// SET-only update expressions. Queries on an index registered with CreateIndex
// honour its sort key, ScanIndexForward, Limit and ExclusiveStartKey.
package awstest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type table struct {
	pk      string
	sk      string
	items   map[string]map[string]types.AttributeValue
	indexes map[string]string // index name -> sort key
}

// FakeDynamo implements aws.DynamoDBAPI against in-memory tables.
type FakeDynamo struct {
	mu     sync.Mutex
	tables map[string]*table
	fail   map[string]error
	calls  map[string]int
}

// NewFakeDynamo returns an empty fake with no tables.
func NewFakeDynamo() *FakeDynamo {
	return &FakeDynamo{
		tables: map[string]*table{},
		fail:   map[string]error{},
		calls:  map[string]int{},
	}
}

// CreateTable registers a table. sk may be empty for hash-only tables.
func (f *FakeDynamo) CreateTable(name, pk, sk string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tables[name] = &table{pk: pk, sk: sk, items: map[string]map[string]types.AttributeValue{}, indexes: map[string]string{}}
}

// CreateIndex registers a secondary index on an existing table whose query
// results are ordered by sk.
func (f *FakeDynamo) CreateIndex(tableName, index, sk string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t, ok := f.tables[tableName]; ok {
		t.indexes[index] = sk
	}
}

// FailNext makes the next call to op (e.g. "TransactWriteItems") return err.
func (f *FakeDynamo) FailNext(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[op] = err
}

// Calls reports how many times op was invoked.
func (f *FakeDynamo) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// Items returns a copy of every item in name, ordered by key.
func (f *FakeDynamo) Items(name string) []map[string]types.AttributeValue {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tables[name]
	if !ok {
		return nil
	}
	return t.sorted()
}

// Seed writes item into name unconditionally.
func (f *FakeDynamo) Seed(name string, item map[string]types.AttributeValue) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, err := f.table(name)
	if err != nil {
		return err
	}
	k, err := t.key(item)
	if err != nil {
		return err
	}
	t.items[k] = copyItem(item)
	return nil
}

func (f *FakeDynamo) enter(op string) error {
	f.calls[op]++
	if err, ok := f.fail[op]; ok {
		delete(f.fail, op)
		return err
	}
	return nil
}

func (f *FakeDynamo) table(name string) (*table, error) {
	t, ok := f.tables[name]
	if !ok {
		return nil, fmt.Errorf("awstest: table %q not created", name)
	}
	return t, nil
}

func (f *FakeDynamo) GetItem(ctx context.Context, params *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("GetItem"); err != nil {
		return nil, err
	}
	t, err := f.table(*params.TableName)
	if err != nil {
		return nil, err
	}
	k, err := t.key(params.Key)
	if err != nil {
		return nil, err
	}
	item, ok := t.items[k]
	if !ok {
		return &dyn.GetItemOutput{}, nil
	}
	return &dyn.GetItemOutput{Item: copyItem(item)}, nil
}

func (f *FakeDynamo) PutItem(ctx context.Context, params *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("PutItem"); err != nil {
		return nil, err
	}
	t, err := f.table(*params.TableName)
	if err != nil {
		return nil, err
	}
	k, err := t.key(params.Item)
	if err != nil {
		return nil, err
	}
	ok, err := evalCondition(params.ConditionExpression, params.ExpressionAttributeNames, params.ExpressionAttributeValues, t.items[k])
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &types.ConditionalCheckFailedException{Message: strPtr("The conditional request failed")}
	}
	t.items[k] = copyItem(params.Item)
	return &dyn.PutItemOutput{}, nil
}

func (f *FakeDynamo) UpdateItem(ctx context.Context, params *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("UpdateItem"); err != nil {
		return nil, err
	}
	t, err := f.table(*params.TableName)
	if err != nil {
		return nil, err
	}
	k, err := t.key(params.Key)
	if err != nil {
		return nil, err
	}
	current := t.items[k]
	ok, err := evalCondition(params.ConditionExpression, params.ExpressionAttributeNames, params.ExpressionAttributeValues, current)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &types.ConditionalCheckFailedException{Message: strPtr("The conditional request failed")}
	}
	next := copyItem(current)
	if next == nil {
		next = copyItem(params.Key)
	}
	if err := applyUpdate(params.UpdateExpression, params.ExpressionAttributeNames, params.ExpressionAttributeValues, next); err != nil {
		return nil, err
	}
	t.items[k] = next
	return &dyn.UpdateItemOutput{Attributes: copyItem(next)}, nil
}

func (f *FakeDynamo) DeleteItem(ctx context.Context, params *dyn.DeleteItemInput, optFns ...func(*dyn.Options)) (*dyn.DeleteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("DeleteItem"); err != nil {
		return nil, err
	}
	t, err := f.table(*params.TableName)
	if err != nil {
		return nil, err
	}
	k, err := t.key(params.Key)
	if err != nil {
		return nil, err
	}
	ok, err := evalCondition(params.ConditionExpression, params.ExpressionAttributeNames, params.ExpressionAttributeValues, t.items[k])
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &types.ConditionalCheckFailedException{Message: strPtr("The conditional request failed")}
	}
	old := t.items[k]
	delete(t.items, k)
	return &dyn.DeleteItemOutput{Attributes: copyItem(old)}, nil
}

func (f *FakeDynamo) Query(ctx context.Context, params *dyn.QueryInput, optFns ...func(*dyn.Options)) (*dyn.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("Query"); err != nil {
		return nil, err
	}
	t, err := f.table(*params.TableName)
	if err != nil {
		return nil, err
	}
	if params.KeyConditionExpression == nil {
		return nil, errors.New("awstest: query without key condition")
	}
	var out []map[string]types.AttributeValue
	for _, item := range t.sorted() {
		ok, err := evalCondition(params.KeyConditionExpression, params.ExpressionAttributeNames, params.ExpressionAttributeValues, item)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, item)
		}
	}
	var sk string
	if params.IndexName != nil {
		sk = t.indexes[*params.IndexName]
	}
	if sk == "" {
		if params.Limit != nil && int(*params.Limit) < len(out) {
			out = out[:*params.Limit]
		}
		return &dyn.QueryOutput{Items: out, Count: int32(len(out))}, nil
	}
	return t.indexQuery(out, sk, params)
}

func (t *table) indexQuery(items []map[string]types.AttributeValue, sk string, params *dyn.QueryInput) (*dyn.QueryOutput, error) {
	// items without the index sort key are not in the index
	matched := items[:0]
	for _, item := range items {
		if _, ok := item[sk]; ok {
			matched = append(matched, item)
		}
	}
	descending := params.ScanIndexForward != nil && !*params.ScanIndexForward
	sort.SliceStable(matched, func(i, j int) bool {
		if descending {
			return lessAttr(matched[j][sk], matched[i][sk])
		}
		return lessAttr(matched[i][sk], matched[j][sk])
	})

	if len(params.ExclusiveStartKey) > 0 {
		startKey, err := t.key(params.ExclusiveStartKey)
		if err != nil {
			return nil, err
		}
		for i, item := range matched {
			if k, _ := t.key(item); k == startKey {
				matched = matched[i+1:]
				break
			}
		}
	}

	out := &dyn.QueryOutput{Items: matched}
	if params.Limit != nil && int(*params.Limit) < len(matched) {
		out.Items = matched[:*params.Limit]
		last := out.Items[len(out.Items)-1]
		lek := map[string]types.AttributeValue{t.pk: last[t.pk], sk: last[sk]}
		if t.sk != "" {
			lek[t.sk] = last[t.sk]
		}
		out.LastEvaluatedKey = lek
	}
	out.Count = int32(len(out.Items))
	return out, nil
}

// lessAttr orders N attributes numerically and everything else by its scalar form.
func lessAttr(a, b types.AttributeValue) bool {
	an, aok := a.(*types.AttributeValueMemberN)
	bn, bok := b.(*types.AttributeValueMemberN)
	if aok && bok {
		x, errX := strconv.ParseFloat(an.Value, 64)
		y, errY := strconv.ParseFloat(bn.Value, 64)
		if errX == nil && errY == nil {
			return x < y
		}
	}
	return scalar(a) < scalar(b)
}

func (f *FakeDynamo) Scan(ctx context.Context, params *dyn.ScanInput, optFns ...func(*dyn.Options)) (*dyn.ScanOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("Scan"); err != nil {
		return nil, err
	}
	t, err := f.table(*params.TableName)
	if err != nil {
		return nil, err
	}
	out := t.sorted()
	if params.Limit != nil && int(*params.Limit) < len(out) {
		out = out[:*params.Limit]
	}
	return &dyn.ScanOutput{Items: out, Count: int32(len(out))}, nil
}

func (f *FakeDynamo) TransactWriteItems(ctx context.Context, params *dyn.TransactWriteItemsInput, optFns ...func(*dyn.Options)) (*dyn.TransactWriteItemsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("TransactWriteItems"); err != nil {
		return nil, err
	}
	if len(params.TransactItems) > 100 {
		return nil, errors.New("awstest: transaction exceeds 100 items")
	}

	type op struct {
		t      *table
		key    string
		put    map[string]types.AttributeValue
		update *types.Update
		delete bool
	}
	ops := make([]op, 0, len(params.TransactItems))
	reasons := make([]types.CancellationReason, len(params.TransactItems))
	failed := false
	seen := map[string]bool{}

	for i, it := range params.TransactItems {
		var (
			tableName *string
			key       map[string]types.AttributeValue
			cond      *string
			names     map[string]string
			values    map[string]types.AttributeValue
			onFail    types.ReturnValuesOnConditionCheckFailure
			o         op
		)
		switch {
		case it.Put != nil:
			tableName, key, cond = it.Put.TableName, it.Put.Item, it.Put.ConditionExpression
			names, values = it.Put.ExpressionAttributeNames, it.Put.ExpressionAttributeValues
			onFail = it.Put.ReturnValuesOnConditionCheckFailure
			o.put = it.Put.Item
		case it.Delete != nil:
			tableName, key, cond = it.Delete.TableName, it.Delete.Key, it.Delete.ConditionExpression
			names, values = it.Delete.ExpressionAttributeNames, it.Delete.ExpressionAttributeValues
			onFail = it.Delete.ReturnValuesOnConditionCheckFailure
			o.delete = true
		case it.Update != nil:
			tableName, key, cond = it.Update.TableName, it.Update.Key, it.Update.ConditionExpression
			names, values = it.Update.ExpressionAttributeNames, it.Update.ExpressionAttributeValues
			onFail = it.Update.ReturnValuesOnConditionCheckFailure
			o.update = it.Update
		case it.ConditionCheck != nil:
			tableName, key, cond = it.ConditionCheck.TableName, it.ConditionCheck.Key, it.ConditionCheck.ConditionExpression
			names, values = it.ConditionCheck.ExpressionAttributeNames, it.ConditionCheck.ExpressionAttributeValues
			onFail = it.ConditionCheck.ReturnValuesOnConditionCheckFailure
		default:
			return nil, errors.New("awstest: empty transact item")
		}

		t, err := f.table(*tableName)
		if err != nil {
			return nil, err
		}
		k, err := t.key(key)
		if err != nil {
			return nil, err
		}
		if seen[*tableName+"/"+k] {
			return nil, errors.New("awstest: transaction touches the same item twice")
		}
		seen[*tableName+"/"+k] = true

		ok, err := evalCondition(cond, names, values, t.items[k])
		if err != nil {
			return nil, err
		}
		if ok {
			reasons[i] = types.CancellationReason{Code: strPtr("None")}
		} else {
			reasons[i] = types.CancellationReason{Code: strPtr("ConditionalCheckFailed"), Message: strPtr("The conditional request failed")}
			if onFail == types.ReturnValuesOnConditionCheckFailureAllOld {
				reasons[i].Item = copyItem(t.items[k])
			}
			failed = true
		}
		o.t, o.key = t, k
		ops = append(ops, o)
	}

	if failed {
		return nil, &types.TransactionCanceledException{
			Message:             strPtr("Transaction cancelled, please refer cancellation reasons for specific reasons"),
			CancellationReasons: reasons,
		}
	}

	for i, o := range ops {
		switch {
		case o.put != nil:
			o.t.items[o.key] = copyItem(o.put)
		case o.delete:
			delete(o.t.items, o.key)
		case o.update != nil:
			next := copyItem(o.t.items[o.key])
			if next == nil {
				next = copyItem(params.TransactItems[i].Update.Key)
			}
			if err := applyUpdate(o.update.UpdateExpression, o.update.ExpressionAttributeNames, o.update.ExpressionAttributeValues, next); err != nil {
				return nil, err
			}
			o.t.items[o.key] = next
		}
	}
	return &dyn.TransactWriteItemsOutput{}, nil
}

func (t *table) key(item map[string]types.AttributeValue) (string, error) {
	pk, ok := item[t.pk]
	if !ok {
		return "", fmt.Errorf("awstest: missing partition key %q", t.pk)
	}
	k := scalar(pk)
	if t.sk != "" {
		sk, ok := item[t.sk]
		if !ok {
			return "", fmt.Errorf("awstest: missing sort key %q", t.sk)
		}
		k += "|" + scalar(sk)
	}
	return k, nil
}

func (t *table) sorted() []map[string]types.AttributeValue {
	keys := make([]string, 0, len(t.items))
	for k := range t.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]map[string]types.AttributeValue, 0, len(keys))
	for _, k := range keys {
		out = append(out, copyItem(t.items[k]))
	}
	return out
}

func evalCondition(expr *string, names map[string]string, values map[string]types.AttributeValue, item map[string]types.AttributeValue) (bool, error) {
	if expr == nil || strings.TrimSpace(*expr) == "" {
		return true, nil
	}
	for _, disjunct := range strings.Split(*expr, " OR ") {
		all := true
		for _, term := range strings.Split(disjunct, " AND ") {
			ok, err := evalTerm(strings.TrimSpace(term), names, values, item)
			if err != nil {
				return false, err
			}
			if !ok {
				all = false
				break
			}
		}
		if all {
			return true, nil
		}
	}
	return false, nil
}

func evalTerm(term string, names map[string]string, values map[string]types.AttributeValue, item map[string]types.AttributeValue) (bool, error) {
	switch {
	case strings.HasPrefix(term, "attribute_not_exists(") && strings.HasSuffix(term, ")"):
		attr := resolveName(term[len("attribute_not_exists("):len(term)-1], names)
		_, exists := item[attr]
		return !exists, nil
	case strings.HasPrefix(term, "attribute_exists(") && strings.HasSuffix(term, ")"):
		attr := resolveName(term[len("attribute_exists("):len(term)-1], names)
		_, exists := item[attr]
		return exists, nil
	}
	parts := strings.SplitN(term, " = ", 2)
	if len(parts) != 2 {
		return false, fmt.Errorf("awstest: unsupported condition %q", term)
	}
	attr := resolveName(strings.TrimSpace(parts[0]), names)
	want, ok := values[strings.TrimSpace(parts[1])]
	if !ok {
		return false, fmt.Errorf("awstest: missing value %s", parts[1])
	}
	got, exists := item[attr]
	if !exists {
		return false, nil
	}
	return sameScalar(got, want), nil
}

func applyUpdate(expr *string, names map[string]string, values map[string]types.AttributeValue, item map[string]types.AttributeValue) error {
	if expr == nil {
		return errors.New("awstest: update without expression")
	}
	e := strings.TrimSpace(*expr)
	if !strings.HasPrefix(e, "SET ") {
		return fmt.Errorf("awstest: unsupported update %q", e)
	}
	for _, assign := range strings.Split(strings.TrimPrefix(e, "SET "), ",") {
		parts := strings.SplitN(assign, "=", 2)
		if len(parts) != 2 {
			return fmt.Errorf("awstest: unsupported assignment %q", assign)
		}
		attr := resolveName(strings.TrimSpace(parts[0]), names)
		v, ok := values[strings.TrimSpace(parts[1])]
		if !ok {
			return fmt.Errorf("awstest: missing value %s", parts[1])
		}
		item[attr] = v
	}
	return nil
}

func resolveName(s string, names map[string]string) string {
	if strings.HasPrefix(s, "#") {
		if n, ok := names[s]; ok {
			return n
		}
	}
	return s
}

func scalar(v types.AttributeValue) string {
	switch tv := v.(type) {
	case *types.AttributeValueMemberS:
		return tv.Value
	case *types.AttributeValueMemberN:
		return tv.Value
	case *types.AttributeValueMemberBOOL:
		if tv.Value {
			return "true"
		}
		return "false"
	default:
		return fmt.Sprintf("%T", v)
	}
}

func sameScalar(a, b types.AttributeValue) bool {
	switch av := a.(type) {
	case *types.AttributeValueMemberS:
		bv, ok := b.(*types.AttributeValueMemberS)
		return ok && av.Value == bv.Value
	case *types.AttributeValueMemberN:
		bv, ok := b.(*types.AttributeValueMemberN)
		return ok && av.Value == bv.Value
	case *types.AttributeValueMemberBOOL:
		bv, ok := b.(*types.AttributeValueMemberBOOL)
		return ok && av.Value == bv.Value
	}
	return false
}

func copyItem(item map[string]types.AttributeValue) map[string]types.AttributeValue {
	if item == nil {
		return nil
	}
	out := make(map[string]types.AttributeValue, len(item))
	for k, v := range item {
		out[k] = v
	}
	return out
}

func strPtr(s string) *string { return &s }
